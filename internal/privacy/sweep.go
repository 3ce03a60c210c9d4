package privacy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/models"
)

// DefaultGrid returns the k/l combinations evaluated by default: k in
// {2, 4, 8}, with l in {2} for k=2 and {2, 3, 4} otherwise.
func DefaultGrid() []RunConfig {
	grid := map[int][]int{
		2: {2},
		4: {2, 3, 4},
		8: {2, 3, 4},
	}

	configs := make([]RunConfig, 0)
	for _, k := range []int{2, 4, 8} {
		for _, l := range grid[k] {
			configs = append(configs, RunConfig{K: k, L: l})
		}
	}
	return configs
}

// Grid builds configurations for every k in ks combined with every l in ls.
// Pairs with l > k are kept: classes larger than k can still reach l, and
// the run reports its own status when they cannot.
func Grid(ks, ls []int) []RunConfig {
	configs := make([]RunConfig, 0, len(ks)*len(ls))
	for _, k := range ks {
		for _, l := range ls {
			configs = append(configs, RunConfig{K: k, L: l})
		}
	}
	return configs
}

// Sweep runs every configuration against its own copy of dataset. A run that
// fails validation stops the sweep; unreachable constraints do not.
func (a *Anonymizer) Sweep(ctx context.Context, dataset *models.Dataset, configs []RunConfig) ([]*Result, error) {
	results := make([]*Result, 0, len(configs))

	for _, config := range configs {
		result, err := a.Run(ctx, dataset, config)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}

	succeeded := 0
	for _, result := range results {
		if result.Succeeded() {
			succeeded++
		}
	}
	a.logger.WithFields(logrus.Fields{
		"configurations": len(configs),
		"succeeded":      succeeded,
	}).Info("Sweep complete")

	return results, nil
}
