package scorer

import (
	"cmp"
	"context"
	"errors"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/youchews/youchews-api/internal/hydrate"
	"github.com/youchews/youchews-api/internal/model"
)

// ContentSource supplies the catalog rows and profile the content scorer
// needs. GetProfile returns nil, nil for an unknown user.
type ContentSource interface {
	GetRestaurants(ctx context.Context, ids []int64) ([]model.Restaurant, error)
	GetProfile(ctx context.Context, userID int64) (*model.Profile, error)
}

// ContentScorer ranks candidates in-process by bag-of-words similarity to
// the restaurants in the user's preference profile.
type ContentScorer struct {
	src ContentSource
}

// NewContentScorer creates a ContentScorer.
func NewContentScorer(src ContentSource) *ContentScorer {
	return &ContentScorer{src: src}
}

var tokenPattern = regexp.MustCompile(`\w\w+`)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above across after afterwards again against all almost alone along already also although
		always am among amongst amoungst amount an and another any anyhow anyone anything anyway anywhere are
		around as at back be became because become becomes becoming been before beforehand behind being below
		beside besides between beyond bill both bottom but by call can cannot cant co con could couldnt cry de
		describe detail do done down due during each eg eight either eleven else elsewhere empty enough etc even
		ever every everyone everything everywhere except few fifteen fifty fill find fire first five for former
		formerly forty found four from front full further get give go had has hasnt have he hence her here
		hereafter hereby herein hereupon hers herself him himself his how however hundred i ie if in inc indeed
		interest into is it its itself keep last latter latterly least less ltd made many may me meanwhile might
		mill mine more moreover most mostly move much must my myself name namely neither never nevertheless next
		nine no nobody none noone nor not nothing now nowhere of off often on once one only onto or other others
		otherwise our ours ourselves out over own part per perhaps please put rather re same see seem seemed
		seeming seems serious several she should show side since sincere six sixty so some somehow someone
		something sometime sometimes somewhere still such system take ten than that the their them themselves
		then thence there thereafter thereby therefore therein thereupon these they thick thin third this those
		though three through throughout thru thus to together too top toward towards twelve twenty two un under
		until up upon us very via was we well were what whatever when whence whenever where whereafter whereas
		whereby wherein whereupon wherever whether which while whither who whoever whole whom whose why will with
		within without would yet you your yours yourself yourselves`) {
		stopWords[w] = struct{}{}
	}
}

// Score implements Scorer. With no usable preferences it falls back to the
// first req.Count candidates, which arrive in proximity order.
func (s *ContentScorer) Score(ctx context.Context, req Request, timeout time.Duration) ([]int64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ranked, err := s.rank(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Detail: err.Error(), Err: err}
		}
		return nil, err
	}
	return ranked, nil
}

func (s *ContentScorer) rank(ctx context.Context, req Request) ([]int64, error) {
	if len(req.CandidateIDs) == 0 || req.Count <= 0 {
		return []int64{}, nil
	}

	profile, err := s.src.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load profile")
	}
	if profile == nil || len(profile.Preferences) == 0 {
		zap.L().Debug("scorer: no preferences, using proximity order", zap.Int64("user_id", req.UserID))
		return head(req.CandidateIDs, req.Count), nil
	}

	rows, err := s.src.GetRestaurants(ctx, req.CandidateIDs)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: load candidates")
	}
	items := orderByIDs(rows, req.CandidateIDs)

	prefIDs := make(map[int64]struct{}, len(profile.Preferences))
	for _, p := range profile.Preferences {
		prefIDs[p.ItemID] = struct{}{}
	}

	vectors := make([]map[string]float64, len(items))
	var liked []int
	for i, r := range items {
		vectors[i] = termCounts(r)
		if _, ok := prefIDs[r.ID]; ok {
			liked = append(liked, i)
		}
	}
	if len(liked) == 0 {
		return head(req.CandidateIDs, req.Count), nil
	}

	type scored struct {
		id    int64
		score float64
		pos   int
	}
	var out []scored
	for i, r := range items {
		if _, ok := prefIDs[r.ID]; ok {
			continue
		}
		var sum float64
		for _, j := range liked {
			sum += cosine(vectors[j], vectors[i])
		}
		out = append(out, scored{id: r.ID, score: sum / float64(len(liked)), pos: i})
	}

	slices.SortStableFunc(out, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})

	ids := make([]int64, 0, min(len(out), req.Count))
	for _, sc := range out {
		if len(ids) == req.Count {
			break
		}
		ids = append(ids, sc.id)
	}
	return ids, nil
}

// termCounts builds the token-count vector for a restaurant from its
// flavors, menu, name, price, service style and cuisine.
func termCounts(r model.Restaurant) map[string]float64 {
	var parts []string
	for _, raw := range [][]string{
		hydrate.NormalizeList(r.Info.Flavors),
		hydrate.NormalizeList(r.Info.Menu),
		{r.Name},
		{hydrate.PriceLevel(r.Info.Price)},
		{r.Info.ServiceStyle, r.Info.Attributes.ServiceType},
		hydrate.NormalizeList(r.Info.Cuisine),
	} {
		for _, v := range raw {
			parts = append(parts, strings.ReplaceAll(strings.ToLower(v), " ", ""))
		}
	}

	counts := make(map[string]float64)
	for _, tok := range tokenPattern.FindAllString(strings.Join(parts, " "), -1) {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		counts[tok]++
	}
	return counts
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for k, v := range a {
		na += v * v
		dot += v * b[k]
	}
	for _, v := range b {
		nb += v * v
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func orderByIDs(rows []model.Restaurant, ids []int64) []model.Restaurant {
	byID := make(map[int64]model.Restaurant, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	out := make([]model.Restaurant, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out
}

func head(ids []int64, n int) []int64 {
	if n > len(ids) {
		n = len(ids)
	}
	return slices.Clone(ids[:n])
}
