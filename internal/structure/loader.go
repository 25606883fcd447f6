package structure

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile reads an extended-XYZ reference file. Each frame is an
// atom-count line, a comment line with energy=... lattice="..." and an
// optional virial="...", then one line per atom:
//
//	symbol x y z fx fy fz
//
// Element symbols are mapped to type indices through the elements table
// from the potential configuration.
func LoadFile(path string, elements []string) ([]*Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file %s: %w", path, err)
	}
	defer f.Close()

	typeOf := make(map[string]int, len(elements))
	for i, el := range elements {
		typeOf[el] = i
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var structures []*Structure
	line := 0
	for scanner.Scan() {
		line++
		countText := strings.TrimSpace(scanner.Text())
		if countText == "" {
			continue
		}
		na, err := strconv.Atoi(countText)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: expected atom count, got %q", path, line, countText)
		}
		if na <= 0 {
			return nil, fmt.Errorf("%s:%d: structure %d has non-positive atom count %d", path, line, len(structures), na)
		}

		if !scanner.Scan() {
			return nil, fmt.Errorf("%s:%d: missing comment line for structure %d", path, line, len(structures))
		}
		line++
		s := &Structure{
			Na:    na,
			Type:  make([]int, na),
			Pos:   make([]float64, 3*na),
			Force: make([]float64, 3*na),
		}
		if err := parseComment(scanner.Text(), s); err != nil {
			return nil, fmt.Errorf("%s:%d: structure %d: %w", path, line, len(structures), err)
		}

		for a := 0; a < na; a++ {
			if !scanner.Scan() {
				return nil, fmt.Errorf("%s:%d: structure %d: missing atom line %d of %d", path, line, len(structures), a+1, na)
			}
			line++
			fields := strings.Fields(scanner.Text())
			if len(fields) < 7 {
				return nil, fmt.Errorf("%s:%d: atom line needs 7 fields (symbol x y z fx fy fz), got %d", path, line, len(fields))
			}
			ti, ok := typeOf[fields[0]]
			if !ok {
				return nil, fmt.Errorf("%s:%d: element %s not in configured elements %v", path, line, fields[0], elements)
			}
			s.Type[a] = ti
			vals, err := parseFloats(fields[1:7])
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
			copy(s.Pos[3*a:3*a+3], vals[0:3])
			copy(s.Force[3*a:3*a+3], vals[3:6])
		}

		structures = append(structures, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset file %s: %w", path, err)
	}
	if len(structures) == 0 {
		return nil, fmt.Errorf("dataset file %s contains no structures", path)
	}
	return structures, nil
}

// parseComment extracts energy, lattice and virial fields from the
// frame comment line
func parseComment(comment string, s *Structure) error {
	pairs := splitKeyValues(comment)

	energyText, ok := pairs["energy"]
	if !ok {
		return fmt.Errorf("comment line is missing energy=")
	}
	energy, err := strconv.ParseFloat(energyText, 64)
	if err != nil {
		return fmt.Errorf("invalid energy value %q: %w", energyText, err)
	}
	s.Energy = energy

	latticeText, ok := pairs["lattice"]
	if !ok {
		return fmt.Errorf("comment line is missing lattice=")
	}
	lattice, err := parseFloats(strings.Fields(latticeText))
	if err != nil {
		return fmt.Errorf("invalid lattice: %w", err)
	}
	if len(lattice) != 9 {
		return fmt.Errorf("lattice needs 9 components, got %d", len(lattice))
	}
	copy(s.Box[:], lattice)

	if virialText, ok := pairs["virial"]; ok {
		virial, err := parseFloats(strings.Fields(virialText))
		if err != nil {
			return fmt.Errorf("invalid virial: %w", err)
		}
		if len(virial) != 6 {
			return fmt.Errorf("virial needs 6 components (xx yy zz xy yz zx), got %d", len(virial))
		}
		copy(s.Virial[:], virial)
		s.HasVirial = true
	}

	return nil
}

// splitKeyValues parses key=value tokens where values may be quoted
// strings containing spaces. Keys are lower-cased.
func splitKeyValues(text string) map[string]string {
	pairs := make(map[string]string)
	i := 0
	for i < len(text) {
		for i < len(text) && text[i] == ' ' {
			i++
		}
		start := i
		for i < len(text) && text[i] != '=' && text[i] != ' ' {
			i++
		}
		if i >= len(text) || text[i] != '=' {
			continue
		}
		key := strings.ToLower(text[start:i])
		i++ // skip '='
		var value string
		if i < len(text) && text[i] == '"' {
			i++
			vstart := i
			for i < len(text) && text[i] != '"' {
				i++
			}
			value = text[vstart:i]
			if i < len(text) {
				i++ // skip closing quote
			}
		} else {
			vstart := i
			for i < len(text) && text[i] != ' ' {
				i++
			}
			value = text[vstart:i]
		}
		pairs[key] = value
	}
	return pairs
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", f, err)
		}
		out[i] = v
	}
	return out, nil
}
