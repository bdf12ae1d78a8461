// Package index derives the idx:<dimension>:<value> lookup sets from the
// canonical profiles.
package index

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/profile-dedupe/internal/identity"
	"github.com/sells-group/profile-dedupe/internal/kv"
	"github.com/sells-group/profile-dedupe/internal/model"
)

// Dimensions are the secondary indexes kept for every canonical profile.
var Dimensions = []string{"handle", "role", "status", "name", "wallet", "tier", "kol"}

const clearBatch = 500

// CanonicalSource lists the keys holding canonical profiles.
type CanonicalSource interface {
	ScanCanonical(ctx context.Context) ([]model.KeyRef, error)
}

// Rebuilder clears and rewrites the secondary indexes.
type Rebuilder struct {
	store  kv.Store
	source CanonicalSource
	prefix string
	log    *zap.Logger
}

// New returns a Rebuilder writing under prefix (default "idx").
func New(store kv.Store, source CanonicalSource, prefix string) *Rebuilder {
	if prefix == "" {
		prefix = "idx"
	}
	return &Rebuilder{
		store:  store,
		source: source,
		prefix: prefix,
		log:    zap.L().With(zap.String("component", "index_rebuilder")),
	}
}

// Keys returns the index keys a profile belongs to, grouped by dimension.
func (r *Rebuilder) Keys(fields map[string]any) map[string][]string {
	out := make(map[string][]string)
	add := func(dim, value string) {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			return
		}
		key := r.prefix + ":" + dim + ":" + value
		for _, k := range out[dim] {
			if k == key {
				return
			}
		}
		out[dim] = append(out[dim], key)
	}

	if h, ok := model.AsString(fields["handle"]); ok {
		add("handle", identity.Normalize(h))
	}
	add("role", model.NormalizeRole(fields["role"]))
	add("status", model.NormalizeRole(fields["approvalStatus"]))
	for _, f := range []string{"displayName", "name"} {
		if s, ok := model.AsString(fields[f]); ok && strings.TrimSpace(s) != "" {
			add("name", s)
			break
		}
	}
	for _, f := range []string{"walletAddresses", "wallets", "walletAddress"} {
		for _, w := range wallets("", fields[f]) {
			add("wallet", w.addr)
			if w.chain != "" {
				add("wallet", w.chain+":"+w.addr)
			}
		}
	}
	if s, ok := model.AsString(fields["tier"]); ok {
		add("tier", s)
	}
	if isKOL(fields) {
		add("kol", "true")
	}
	return out
}

type wallet struct{ chain, addr string }

// wallets flattens the shapes wallet fields have been stored in: a bare
// address, a list of addresses, a chain-to-address map, or objects with
// chain and address fields.
func wallets(chain string, v any) []wallet {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return []wallet{{chain: strings.ToLower(chain), addr: x}}
	case []any:
		var out []wallet
		for _, e := range x {
			out = append(out, wallets(chain, e)...)
		}
		return out
	case map[string]any:
		if addr, ok := x["address"].(string); ok {
			c, _ := x["chain"].(string)
			if c == "" {
				c = chain
			}
			return wallets(c, addr)
		}
		var out []wallet
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, wallets(k, x[k])...)
		}
		return out
	default:
		return nil
	}
}

func isKOL(fields map[string]any) bool {
	for _, f := range []string{"isKOL", "kol"} {
		if b, ok := model.AsBool(fields[f]); ok && b {
			return true
		}
	}
	return model.NormalizeRole(fields["role"]) == "kol"
}

// Plan computes the index contents for profiles without touching the store.
func (r *Rebuilder) Plan(profiles []model.CanonicalProfile) ([]model.IndexEntry, model.IndexStats) {
	stats := model.IndexStats{Planned: true, Dimensions: make(map[string]int)}
	members := make(map[string][]string)
	for _, p := range profiles {
		stats.Profiles++
		for dim, keys := range r.Keys(p.Fields) {
			for _, k := range keys {
				members[k] = append(members[k], p.ID)
				stats.Dimensions[dim]++
				stats.Entries++
			}
		}
	}

	out := make([]model.IndexEntry, 0, len(members))
	for k, ids := range members {
		sort.Strings(ids)
		out = append(out, model.IndexEntry{IndexKey: k, MemberIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexKey < out[j].IndexKey })
	return out, stats
}

// Clear deletes every index key of every dimension and returns how many were
// removed.
func (r *Rebuilder) Clear(ctx context.Context) (int, error) {
	cleared := 0
	for _, dim := range Dimensions {
		keys, err := r.store.Keys(ctx, r.prefix+":"+dim+":*")
		if err != nil {
			return cleared, eris.Wrapf(err, "index: list %s keys", dim)
		}
		for start := 0; start < len(keys); start += clearBatch {
			end := min(start+clearBatch, len(keys))
			n, err := r.store.Delete(ctx, keys[start:end]...)
			cleared += n
			if err != nil {
				return cleared, eris.Wrapf(err, "index: clear %s keys", dim)
			}
		}
	}
	return cleared, nil
}

// Rebuild clears every index and rewrites it from the canonical profiles in
// the store. A profile that cannot be read or indexed is counted, logged and
// skipped. Only a failure to clear or to list the canonical keys is returned.
func (r *Rebuilder) Rebuild(ctx context.Context) (model.IndexStats, error) {
	stats := model.IndexStats{Dimensions: make(map[string]int)}

	cleared, err := r.Clear(ctx)
	stats.Cleared = cleared
	if err != nil {
		return stats, err
	}

	refs, err := r.source.ScanCanonical(ctx)
	if err != nil {
		return stats, eris.Wrap(err, "index: list canonical profiles")
	}

	for _, ref := range refs {
		if err := r.indexOne(ctx, ref, &stats); err != nil {
			stats.Failed++
			stats.Failures = append(stats.Failures, model.Orphan{Key: ref.Key, Reason: err.Error()})
			r.log.Warn("index profile failed", zap.String("key", ref.Key), zap.Error(err))
			continue
		}
		stats.Profiles++
	}

	r.log.Info("rebuilt indexes",
		zap.Int("cleared", stats.Cleared),
		zap.Int("profiles", stats.Profiles),
		zap.Int("entries", stats.Entries),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (r *Rebuilder) indexOne(ctx context.Context, ref model.KeyRef, stats *model.IndexStats) error {
	raw, err := r.store.Get(ctx, ref.Key)
	if err != nil {
		return eris.Wrap(err, "index: read profile")
	}
	fields, err := model.DecodeObject(raw)
	if err != nil {
		return err
	}
	if ref.ID == "" {
		return eris.New("index: canonical key has no id")
	}

	for dim, keys := range r.Keys(fields) {
		for _, k := range keys {
			if err := r.store.AddMembers(ctx, k, ref.ID); err != nil {
				return eris.Wrapf(err, "index: add to %s", k)
			}
			stats.Dimensions[dim]++
			stats.Entries++
		}
	}
	return nil
}
