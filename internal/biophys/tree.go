package biophys

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ErrBadTree = errors.New("malformed decision tree")

// op is the comparison stored on a child node; the child is taken when the
// comparison holds.
type op int

const (
	opLE op = iota
	opLT
	opGT
	opGE
)

func parseOp(s string) (op, error) {
	switch s {
	case "<=":
		return opLE, nil
	case "<":
		return opLT, nil
	case ">":
		return opGT, nil
	case ">=":
		return opGE, nil
	}
	return 0, fmt.Errorf("%w: operator %q", ErrBadTree, s)
}

func (o op) holds(x, threshold float64) bool {
	switch o {
	case opLE:
		return x <= threshold
	case opLT:
		return x < threshold
	case opGT:
		return x > threshold
	}
	return x >= threshold
}

type node struct {
	id        int
	variable  string
	op        op
	threshold float64
	value     float64
	leaf      bool
	left      *node
	right     *node
}

// DecisionTree is a parsed regression tree.
type DecisionTree struct {
	root *node
	vars []string
}

// Variables returns the regressor names the tree splits on.
func (t *DecisionTree) Variables() []string {
	return append([]string(nil), t.vars...)
}

// line matches "N) split n loss yval [*]" where split is "root" or
// "<var><op><threshold>".
var line = regexp.MustCompile(`^\s*(\d+)\)\s+(root|([A-Za-z_][A-Za-z0-9_.]*)\s*(<=|>=|<|>)\s*(\S+))\s+\S+\s+\S+\s+(\S+)\s*(\*)?\s*$`)

// ParseTree decodes a tree serialized with '#' in place of newlines. Node N
// has children 2N and 2N+1; each child line carries the condition under
// which it is taken.
func ParseTree(encoded string) (*DecisionTree, error) {
	nodes := make(map[int]*node)
	vars := make(map[string]bool)
	var order []string

	for _, raw := range strings.Split(strings.ReplaceAll(encoded, "#", "\n"), "\n") {
		m := line.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: node id %q", ErrBadTree, m[1])
		}
		value, err := strconv.ParseFloat(m[6], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d value %q", ErrBadTree, id, m[6])
		}
		n := &node{id: id, value: value, leaf: m[7] == "*"}
		if m[2] != "root" {
			n.variable = m[3]
			if n.op, err = parseOp(m[4]); err != nil {
				return nil, err
			}
			if n.threshold, err = strconv.ParseFloat(m[5], 64); err != nil {
				return nil, fmt.Errorf("%w: node %d threshold %q", ErrBadTree, id, m[5])
			}
			if !vars[n.variable] {
				vars[n.variable] = true
				order = append(order, n.variable)
			}
		}
		if _, dup := nodes[id]; dup {
			return nil, fmt.Errorf("%w: duplicate node %d", ErrBadTree, id)
		}
		nodes[id] = n
	}

	root, ok := nodes[1]
	if !ok {
		return nil, fmt.Errorf("%w: no root node", ErrBadTree)
	}
	for id, n := range nodes {
		if n.leaf {
			continue
		}
		l, lok := nodes[2*id]
		r, rok := nodes[2*id+1]
		if !lok || !rok {
			return nil, fmt.Errorf("%w: node %d is missing a child", ErrBadTree, id)
		}
		n.left, n.right = l, r
	}
	return &DecisionTree{root: root, vars: order}, nil
}

// Predict walks the tree for one sample. get returns the value of a
// regressor; a missing regressor is an error.
func (t *DecisionTree) Predict(get func(name string) (float64, bool)) (float64, error) {
	n := t.root
	for !n.leaf {
		x, ok := get(n.left.variable)
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingInputBand, n.left.variable)
		}
		if n.left.op.holds(x, n.left.threshold) {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value, nil
}

// Ensemble averages the predictions of its member trees.
type Ensemble struct {
	Trees []*DecisionTree
}

// Predict returns the mean and standard deviation across members.
func (e *Ensemble) Predict(get func(name string) (float64, bool)) (mean, std float64, err error) {
	if len(e.Trees) == 0 {
		return 0, 0, fmt.Errorf("%w: empty ensemble", ErrBadTree)
	}
	values := make([]float64, len(e.Trees))
	for i, t := range e.Trees {
		if values[i], err = t.Predict(get); err != nil {
			return 0, 0, err
		}
		mean += values[i]
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std /= float64(len(values))
	return mean, math.Sqrt(std), nil
}
