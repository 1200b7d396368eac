package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/wgslinterp/interp"
)

// buffer is a host buffer and the element kind used to print it.
type buffer struct {
	mem  *interp.Memory
	kind string
}

func (b *buffer) format() string {
	data := b.mem.Bytes()
	words := make([]string, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		w := binary.LittleEndian.Uint32(data[i:])
		switch b.kind {
		case "i32":
			words = append(words, strconv.FormatInt(int64(int32(w)), 10))
		case "f32":
			words = append(words, strconv.FormatFloat(float64(math.Float32frombits(w)), 'g', -1, 32))
		default:
			words = append(words, strconv.FormatUint(uint64(w), 10))
		}
	}
	return b.kind + ":" + strings.Join(words, ",")
}

// parseCount parses "x,y,z". Missing trailing dimensions default to 1.
func parseCount(s string) (interp.UVec3, error) {
	out := interp.UVec3{1, 1, 1}
	parts := strings.Split(s, ",")
	if len(parts) > 3 {
		return out, fmt.Errorf("invalid workgroup count %q: more than 3 dimensions", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return out, fmt.Errorf("invalid workgroup count %q: %w", s, err)
		}
		out[i] = uint32(n)
	}
	return out, nil
}

// parseOverrides parses name=value pairs.
func parseOverrides(list []string) (map[string]float64, error) {
	out := make(map[string]float64, len(list))
	for _, s := range list {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid override %q: want name=value", s)
		}
		x, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", s, err)
		}
		out[name] = x
	}
	return out, nil
}

// parseBuffer parses "group:binding=spec".
func parseBuffer(s string) (interp.BindingPoint, *buffer, error) {
	var point interp.BindingPoint
	where, spec, ok := strings.Cut(s, "=")
	if !ok {
		return point, nil, fmt.Errorf("invalid buffer %q: want group:binding=spec", s)
	}
	g, b, ok := strings.Cut(where, ":")
	if !ok {
		return point, nil, fmt.Errorf("invalid buffer %q: want group:binding=spec", s)
	}
	group, err := strconv.ParseUint(g, 10, 32)
	if err != nil {
		return point, nil, fmt.Errorf("invalid buffer group in %q: %w", s, err)
	}
	binding, err := strconv.ParseUint(b, 10, 32)
	if err != nil {
		return point, nil, fmt.Errorf("invalid buffer binding in %q: %w", s, err)
	}
	point = interp.BindingPoint{Group: uint32(group), Binding: uint32(binding)}

	buf, err := parseContents(spec)
	if err != nil {
		return point, nil, fmt.Errorf("invalid buffer %q: %w", s, err)
	}
	return point, buf, nil
}

func parseContents(spec string) (*buffer, error) {
	if path, ok := strings.CutPrefix(spec, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &buffer{mem: interp.NewMemoryFrom(data), kind: "u32"}, nil
	}

	kind, values, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, errors.New("missing element kind")
	}
	if kind == "zero" {
		n, err := strconv.ParseUint(values, 10, 64)
		if err != nil {
			return nil, err
		}
		return &buffer{mem: interp.NewMemory(n), kind: "u32"}, nil
	}

	switch kind {
	case "u32", "i32", "f32":
	default:
		return nil, fmt.Errorf("unknown element kind %q", kind)
	}

	var fields []string
	if values != "" {
		fields = strings.Split(values, ",")
	}
	mem := interp.NewMemory(uint64(4 * len(fields)))
	for i, f := range fields {
		f = strings.TrimSpace(f)
		var w uint32
		switch kind {
		case "u32":
			n, err := strconv.ParseUint(f, 0, 32)
			if err != nil {
				return nil, err
			}
			w = uint32(n)
		case "i32":
			n, err := strconv.ParseInt(f, 0, 32)
			if err != nil {
				return nil, err
			}
			w = uint32(int32(n))
		case "f32":
			x, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, err
			}
			w = math.Float32bits(float32(x))
		}
		binary.LittleEndian.PutUint32(mem.Bytes()[4*i:], w)
	}
	return &buffer{mem: mem, kind: kind}, nil
}
