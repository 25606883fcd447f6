package potential

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mlpotfit/fitting-core/internal/dataset"
	"github.com/mlpotfit/fitting-core/pkg/config"
)

// Model is the evaluation kernel contract. Evaluate fills the dataset's
// prediction buffers (Energy, Force, Virial) for the given parameter
// vector and must leave every *Ref buffer untouched. It must be safe to
// call repeatedly on the same Dataset. During warm-up it additionally
// materializes the dataset's descriptor Scaler.
//
// Predictions containing NaN or Inf are not detected here; they
// propagate into fitness values, which the selection operator must
// treat as worst-possible fitness.
type Model interface {
	Evaluate(params []float64, ds *dataset.Dataset, warmup bool) error
}

// Factory constructs a Model for a definition. Kernels register
// themselves by family token, the way database drivers do, so the
// fitting core never links a specific kernel implementation.
type Factory func(Definition) (Model, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a kernel factory available under a family token.
// It panics on duplicate registration.
func Register(family string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if f == nil {
		panic("potential: Register called with nil factory")
	}
	if _, dup := factories[family]; dup {
		panic("potential: Register called twice for family " + family)
	}
	factories[family] = f
}

// New constructs the Model for the definition's family
func New(def Definition) (Model, error) {
	factoryMu.RLock()
	f, ok := factories[def.Family]
	factoryMu.RUnlock()
	if !ok {
		return nil, &UnknownFamilyError{Family: def.Family, Known: knownFamilies()}
	}
	return f(def)
}

func knownFamilies() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownFamilyError indicates no kernel is registered for a family
type UnknownFamilyError struct {
	Family string
	Known  []string
}

func (e *UnknownFamilyError) Error() string {
	return fmt.Sprintf("no evaluation kernel registered for potential family %q (registered: %v)", e.Family, e.Known)
}

// Definition fixes the potential family and hyperparameters for a run
type Definition struct {
	Family           string
	Elements         []string
	CutoffRadial     float64
	CutoffAngular    float64
	NMaxRadial       int
	NMaxAngular      int
	BasisSizeRadial  int
	BasisSizeAngular int
	LMax3            int
	LMax4            int
	HiddenNeurons    int
	ZBL              bool
	ZBLInner         float64
	ZBLOuter         float64
}

// DefinitionFromConfig copies the validated potential configuration
// into an immutable definition value.
func DefinitionFromConfig(pc *config.PotentialConfig) Definition {
	def := Definition{
		Family:           pc.Family,
		Elements:         append([]string(nil), pc.Elements...),
		CutoffRadial:     pc.CutoffRadial,
		CutoffAngular:    pc.CutoffAngular,
		NMaxRadial:       pc.NMaxRadial,
		NMaxAngular:      pc.NMaxAngular,
		BasisSizeRadial:  pc.BasisSizeRadial,
		BasisSizeAngular: pc.BasisSizeAngular,
		LMax3:            pc.LMax3,
		LMax4:            pc.LMax4,
		HiddenNeurons:    pc.HiddenNeurons,
	}
	if pc.ZBL != nil {
		def.ZBL = true
		def.ZBLInner = pc.ZBL.InnerCutoff
		def.ZBLOuter = pc.ZBL.OuterCutoff
	}
	return def
}

// HeaderToken identifies the family/variant in the serialized snapshot
func (d Definition) HeaderToken() string {
	if d.ZBL {
		return d.Family + "_zbl"
	}
	return d.Family
}

// DescriptorDim returns the number of descriptor components per atom:
// radial channels plus one angular channel per expansion order.
func (d Definition) DescriptorDim() int {
	return (d.NMaxRadial + 1) + (d.NMaxAngular+1)*d.LMax3
}

// ParamCount returns the length of an individual's parameter vector:
// the network weights, the radial and angular expansion coefficients
// for every ordered type pair, and one trailing additive energy bias.
// The bias being last is what lets the reporter cancel a constant
// energy offset by adjusting a single parameter.
func (d Definition) ParamCount() int {
	dim := d.DescriptorDim()
	ann := (dim+2)*d.HiddenNeurons + 1
	types := len(d.Elements)
	expansion := types * types * ((d.NMaxRadial+1)*(d.BasisSizeRadial+1) + (d.NMaxAngular+1)*(d.BasisSizeAngular+1))
	return ann + expansion + 1
}
