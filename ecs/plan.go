package ecs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StagePlan lists the parallel groups of one stage, in execution order.
type StagePlan struct {
	Name   string
	Groups [][]string
}

// Plan is the built schedule.
type Plan struct {
	Stages []StagePlan
}

// GroupCount returns the number of groups across all stages.
func (p *Plan) GroupCount() int {
	n := 0
	for _, stage := range p.Stages {
		n += len(stage.Groups)
	}
	return n
}

func (p *Plan) String() string {
	var b strings.Builder
	for _, stage := range p.Stages {
		if len(stage.Groups) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:", stage.Name)
		for _, group := range stage.Groups {
			fmt.Fprintf(&b, " [%s]", strings.Join(group, " "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Plan returns the built schedule, or nil before Build.
func (s *Scheduler) Plan() *Plan {
	if !s.built {
		return nil
	}
	p := &Plan{Stages: make([]StagePlan, len(s.stages))}
	for si, groups := range s.plan {
		p.Stages[si].Name = s.stages[si]
		for _, group := range groups {
			names := make([]string, len(group))
			for i, n := range group {
				names[i] = n.name
			}
			p.Stages[si].Groups = append(p.Stages[si].Groups, names)
		}
	}
	return p
}

// Build validates ordering constraints and computes the parallel groups of
// every stage. It runs automatically before the first tick; afterwards the
// schedule is locked.
func (s *Scheduler) Build() error {
	if s.built {
		return nil
	}
	s.setState(StatePlanning)
	defer s.setState(StateIdle)
	s.world.syncStorages()

	stageIndex := make(map[string]int, len(s.stages))
	for i, name := range s.stages {
		stageIndex[name] = i
	}

	// succ[a] holds systems that must run after a within the same stage.
	succ := make([][]int, len(s.systems))
	edge := func(from, to *systemNode) error {
		fs, ts := stageIndex[from.stage], stageIndex[to.stage]
		if fs > ts {
			return eris.Wrapf(ErrConflictingAccess, "%s must run before %s but stage %s follows %s",
				from.name, to.name, from.stage, to.stage)
		}
		if fs == ts && !slices.Contains(succ[from.index], to.index) {
			succ[from.index] = append(succ[from.index], to.index)
		}
		return nil
	}

	for _, n := range s.systems {
		for _, name := range n.before {
			other, ok := s.byName[name]
			if !ok {
				return eris.Wrapf(ErrConflictingAccess, "system %s ordered before unknown system %q", n.name, name)
			}
			if err := edge(n, other); err != nil {
				return err
			}
		}
		for _, name := range n.after {
			other, ok := s.byName[name]
			if !ok {
				return eris.Wrapf(ErrConflictingAccess, "system %s ordered after unknown system %q", n.name, name)
			}
			if err := edge(other, n); err != nil {
				return err
			}
		}
	}

	plan := make([][][]*systemNode, len(s.stages))
	for si, stage := range s.stages {
		var members []*systemNode
		for _, n := range s.systems {
			if n.stage == stage {
				members = append(members, n)
			}
		}

		order, err := topoOrder(members, succ)
		if err != nil {
			return eris.Wrapf(err, "stage %s", stage)
		}
		plan[si] = assignGroups(order, succ)
	}

	s.plan = plan
	s.built = true

	if ce := s.logger.Check(zap.DebugLevel, "schedule built"); ce != nil {
		ce.Write(zap.Int("systems", len(s.systems)), zap.String("plan", s.Plan().String()))
	}
	return nil
}

// topoOrder sorts members with Kahn's algorithm, always taking the ready
// system registered first.
func topoOrder(members []*systemNode, succ [][]int) ([]*systemNode, error) {
	inStage := make(map[int]*systemNode, len(members))
	for _, n := range members {
		inStage[n.index] = n
	}
	indegree := make(map[int]int, len(members))
	for _, n := range members {
		for _, to := range succ[n.index] {
			if _, ok := inStage[to]; ok {
				indegree[to]++
			}
		}
	}

	var ready []int
	for _, n := range members {
		if indegree[n.index] == 0 {
			ready = append(ready, n.index)
		}
	}

	order := make([]*systemNode, 0, len(members))
	for len(ready) > 0 {
		slices.Sort(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, inStage[next])
		for _, to := range succ[next] {
			if _, ok := inStage[to]; !ok {
				continue
			}
			indegree[to]--
			if indegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) != len(members) {
		var stuck []string
		for _, n := range members {
			if indegree[n.index] > 0 {
				stuck = append(stuck, n.name)
			}
		}
		return nil, eris.Wrapf(ErrConflictingAccess, "ordering cycle among %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

// assignGroups places each system one group after the latest earlier system
// it must follow or conflicts with.
func assignGroups(order []*systemNode, succ [][]int) [][]*systemNode {
	groupOf := make(map[int]int, len(order))
	var groups [][]*systemNode

	for i, n := range order {
		g := 0
		for _, prev := range order[:i] {
			if slices.Contains(succ[prev.index], n.index) || prev.access.Conflicts(&n.access) {
				g = max(g, groupOf[prev.index]+1)
			}
		}
		groupOf[n.index] = g
		for len(groups) <= g {
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], n)
	}
	return groups
}
