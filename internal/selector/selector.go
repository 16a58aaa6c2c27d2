package selector

import (
	"sort"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
)

// Policy controls how many torrents of each tier are picked and the seed floor per tier.
type Policy struct {
	Max1080p      int
	Max720p       int
	MinSeeds1080p int
	MinSeeds720p  int
	MinSeedsOther int
}

func DefaultPolicy() Policy {
	return Policy{
		Max1080p:      1,
		Max720p:       2,
		MinSeeds1080p: 3,
		MinSeeds720p:  2,
		MinSeedsOther: 1,
	}
}

func PolicyFromConfig(cfg config.SelectionConfig) Policy {
	return Policy{
		Max1080p:      cfg.Max1080p,
		Max720p:       cfg.Max720p,
		MinSeeds1080p: cfg.MinSeeds1080p,
		MinSeeds720p:  cfg.MinSeeds720p,
		MinSeedsOther: cfg.MinSeedsOther,
	}
}

// Select picks at most count candidates:
//
//  1. 4K and blocked candidates are never eligible.
//  2. up to Max1080p 1080p candidates with MinSeeds1080p seeds,
//  3. up to Max720p 720p candidates with MinSeeds720p seeds,
//  4. other qualities with MinSeedsOther seeds, best quality first,
//  5. anything left with at least one seed, in input order.
//
// Select is pure: the result depends only on its arguments and their order.
func Select(cands []domain.Candidate, count int, p Policy) []domain.Candidate {
	if count <= 0 || len(cands) == 0 {
		return []domain.Candidate{}
	}

	picked := make([]bool, len(cands))
	out := make([]domain.Candidate, 0, count)
	take := func(i int) {
		picked[i] = true
		out = append(out, cands[i])
	}
	eligible := func(i int) bool {
		return !picked[i] && !cands[i].Blocked && !cands[i].Quality.Excluded()
	}

	takeTier := func(q domain.Quality, limit, minSeeds int) {
		taken := 0
		for i := range cands {
			if len(out) >= count || taken >= limit {
				return
			}
			if eligible(i) && cands[i].Quality == q && cands[i].Seeds >= minSeeds {
				take(i)
				taken++
			}
		}
	}
	takeTier(domain.Quality1080p, p.Max1080p, p.MinSeeds1080p)
	takeTier(domain.Quality720p, p.Max720p, p.MinSeeds720p)

	var others []int
	for i := range cands {
		q := cands[i].Quality
		if eligible(i) && q != domain.Quality1080p && q != domain.Quality720p && cands[i].Seeds >= p.MinSeedsOther {
			others = append(others, i)
		}
	}
	sort.SliceStable(others, func(a, b int) bool {
		return cands[others[a]].Quality > cands[others[b]].Quality
	})
	for _, i := range others {
		if len(out) >= count {
			break
		}
		take(i)
	}

	for i := range cands {
		if len(out) >= count {
			break
		}
		if eligible(i) && cands[i].Seeds >= 1 {
			take(i)
		}
	}
	return out
}
