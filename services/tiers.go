// services/tiers.go
package services

import (
	"fmt"
	"sort"
)

// TierDefinition is one rung of the membership ladder.
// MaxPoints is nil for the top tier.
type TierDefinition struct {
	Level     int      `json:"nivel" yaml:"level"`
	MinPoints int64    `json:"minPontos" yaml:"min_points"`
	MaxPoints *int64   `json:"maxPontos" yaml:"max_points"`
	Title     string   `json:"titulo" yaml:"title"`
	Perks     []string `json:"beneficios" yaml:"perks"`
}

// Contains reports whether balance falls inside this tier's range.
func (t TierDefinition) Contains(balance int64) bool {
	if balance < t.MinPoints {
		return false
	}
	return t.MaxPoints == nil || balance <= *t.MaxPoints
}

func maxPoints(v int64) *int64 { return &v }

// DefaultTiers is the membership program as it ships.
var DefaultTiers = []TierDefinition{
	{
		Level: 1, MinPoints: 0, MaxPoints: maxPoints(999), Title: "Membro Iniciante",
		Perks: []string{"Bônus de boas-vindas", "Frete grátis em compras acima de R$100"},
	},
	{
		Level: 2, MinPoints: 1000, MaxPoints: maxPoints(2999), Title: "Membro Bronze",
		Perks: []string{"Todos os benefícios de Nível 1", "Ofertas exclusivas para membros", "Desconto de 5% em todos os produtos"},
	},
	{
		Level: 3, MinPoints: 3000, MaxPoints: maxPoints(8999), Title: "Membro Prata",
		Perks: []string{"Todos os benefícios do Nível 2", "Acesso antecipado a produtos", "Desconto de 10% em todos os produtos", "Suporte prioritário"},
	},
	{
		Level: 4, MinPoints: 9000, MaxPoints: nil, Title: "Membro Ouro",
		Perks: []string{"Todos os benefícios do Nível 3", "Desconto de 15% em todos os produtos", "Acesso a eventos exclusivos", "Presente de aniversário"},
	},
}

// TierTable is an immutable, validated, ascending list of tiers.
type TierTable struct {
	tiers []TierDefinition
}

// NewTierTable validates defs and returns a table.
// Tiers must start at level 1 / 0 points, climb one level at a time and
// cover the whole non-negative range without gaps or overlaps.
func NewTierTable(defs []TierDefinition) (*TierTable, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}

	tiers := make([]TierDefinition, len(defs))
	for i, d := range defs {
		d.Perks = append([]string(nil), d.Perks...)
		if d.MaxPoints != nil {
			d.MaxPoints = maxPoints(*d.MaxPoints)
		}
		tiers[i] = d
	}

	if tiers[0].Level != 1 || tiers[0].MinPoints != 0 {
		return nil, fmt.Errorf("%w: first tier must be level 1 starting at 0 points", ErrInvalidTierTable)
	}

	last := len(tiers) - 1
	for i, t := range tiers {
		if i > 0 && t.Level != tiers[i-1].Level+1 {
			return nil, fmt.Errorf("%w: level %d follows level %d", ErrInvalidTierTable, t.Level, tiers[i-1].Level)
		}
		if i == last {
			if t.MaxPoints != nil {
				return nil, fmt.Errorf("%w: top tier %d must be unbounded", ErrInvalidTierTable, t.Level)
			}
			continue
		}
		if t.MaxPoints == nil {
			return nil, fmt.Errorf("%w: tier %d is unbounded but not the last", ErrInvalidTierTable, t.Level)
		}
		if *t.MaxPoints < t.MinPoints {
			return nil, fmt.Errorf("%w: tier %d max %d below min %d", ErrInvalidTierTable, t.Level, *t.MaxPoints, t.MinPoints)
		}
		if next := tiers[i+1]; next.MinPoints != *t.MaxPoints+1 {
			return nil, fmt.Errorf("%w: tier %d starts at %d, want %d", ErrInvalidTierTable, next.Level, next.MinPoints, *t.MaxPoints+1)
		}
	}

	return &TierTable{tiers: tiers}, nil
}

// MustTierTable is NewTierTable for static tables known to be valid.
func MustTierTable(defs []TierDefinition) *TierTable {
	t, err := NewTierTable(defs)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the tier with the greatest MinPoints not exceeding balance.
// A balance sitting exactly on a threshold belongs to the higher tier.
func (t *TierTable) Resolve(balance int64) (TierDefinition, error) {
	if balance < 0 {
		return TierDefinition{}, fmt.Errorf("%w: negative balance %d", ErrInvalidAmount, balance)
	}
	// first tier whose floor is above balance; the one before it is ours
	i := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].MinPoints > balance
	})
	return t.tiers[i-1], nil
}

// ByLevel looks a tier up by its level.
func (t *TierTable) ByLevel(level int) (TierDefinition, bool) {
	i := level - 1
	if i < 0 || i >= len(t.tiers) {
		return TierDefinition{}, false
	}
	return t.tiers[i], true
}

// Next returns the tier directly above level, if any.
func (t *TierTable) Next(level int) (TierDefinition, bool) {
	return t.ByLevel(level + 1)
}

// Lowest is the entry tier every new account starts in.
func (t *TierTable) Lowest() TierDefinition { return t.tiers[0] }

// MaxLevel is the level of the top tier.
func (t *TierTable) MaxLevel() int { return t.tiers[len(t.tiers)-1].Level }

// All returns a copy of the table for display.
func (t *TierTable) All() []TierDefinition {
	out := make([]TierDefinition, len(t.tiers))
	copy(out, t.tiers)
	return out
}
