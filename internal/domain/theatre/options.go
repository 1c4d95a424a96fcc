package theatre

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ehr/theatre/internal/platform/timing"
)

// MaxOptionLimit bounds every option directory page.
const MaxOptionLimit = 50

// OptionKind names an option directory.
type OptionKind string

const (
	OptionRooms      OptionKind = "rooms"
	OptionStaff      OptionKind = "staff"
	OptionEquipment  OptionKind = "equipment"
	OptionEncounters OptionKind = "encounters"
)

var optionKinds = []OptionKind{OptionRooms, OptionStaff, OptionEquipment, OptionEncounters}

// OptionKinds returns the directories in a stable order.
func OptionKinds() []OptionKind {
	return append([]OptionKind(nil), optionKinds...)
}

func (k OptionKind) Valid() bool {
	for _, known := range optionKinds {
		if k == known {
			return true
		}
	}
	return false
}

var optionSort = map[OptionKind][2]string{
	OptionRooms:      {"name", "asc"},
	OptionStaff:      {"last_name", "asc"},
	OptionEquipment:  {"name", "asc"},
	OptionEncounters: {"created_at", "desc"},
}

func emptyOptions() map[OptionKind][]Option {
	m := make(map[OptionKind][]Option, len(optionKinds))
	for _, k := range optionKinds {
		m[k] = []Option{}
	}
	return m
}

// DedupeOptions drops options without a value and keeps the first
// occurrence of each value.
func DedupeOptions(in []Option) []Option {
	seen := make(map[string]bool, len(in))
	out := make([]Option, 0, len(in))
	for _, o := range in {
		if o.Value == "" || seen[o.Value] {
			continue
		}
		seen[o.Value] = true
		out = append(out, o)
	}
	return out
}

type labeled interface {
	PublicID() string
	Label() string
}

func toOptions[T labeled](rows []T) []Option {
	out := make([]Option, 0, len(rows))
	for _, r := range rows {
		value := r.PublicID()
		if value == "" {
			continue
		}
		label := r.Label()
		if label == "" {
			label = value
		}
		out = append(out, Option{Value: value, Label: label})
	}
	return DedupeOptions(out)
}

// OptionDirectories keeps the four picker lists. Each directory debounces
// its own search text, so typing in one never cancels another's fetch.
type OptionDirectories struct {
	w          *Workflow
	mu         sync.Mutex
	search     map[OptionKind]string
	debouncers map[OptionKind]*timing.Debouncer
}

func newOptionDirectories(w *Workflow) *OptionDirectories {
	d := &OptionDirectories{
		w:          w,
		search:     make(map[OptionKind]string, len(optionKinds)),
		debouncers: make(map[OptionKind]*timing.Debouncer, len(optionKinds)),
	}
	for _, k := range optionKinds {
		d.debouncers[k] = timing.NewDebouncer(w.clock, w.opts.SearchDebounce)
	}
	return d
}

func (d *OptionDirectories) params(kind OptionKind, c Capability) Params {
	d.mu.Lock()
	search := Sanitize(d.search[kind])
	d.mu.Unlock()

	sortSpec := optionSort[kind]
	q := Params{
		"limit":   strconv.Itoa(d.w.opts.OptionLimit),
		"sort_by": sortSpec[0],
		"order":   sortSpec[1],
	}
	if search != "" {
		q["search"] = search
	}
	scopeParams(q, c)
	return q
}

func (d *OptionDirectories) fetch(ctx context.Context, kind OptionKind, c Capability) ([]Option, error) {
	refs := d.w.references
	params := d.params(kind, c)
	switch kind {
	case OptionRooms:
		rows, err := refs.ListRooms(ctx, params)
		if err != nil {
			return nil, err
		}
		return toOptions(rows), nil
	case OptionStaff:
		rows, err := refs.ListStaff(ctx, params)
		if err != nil {
			return nil, err
		}
		return toOptions(rows), nil
	case OptionEquipment:
		rows, err := refs.ListEquipment(ctx, params)
		if err != nil {
			return nil, err
		}
		return toOptions(rows), nil
	case OptionEncounters:
		rows, err := refs.ListEncounters(ctx, params)
		if err != nil {
			return nil, err
		}
		return toOptions(rows), nil
	}
	return nil, fmt.Errorf("theatre: unknown option directory %q", kind)
}

// SetSearch records the directory's search text and schedules its fetch.
func (d *OptionDirectories) SetSearch(kind OptionKind, text string) error {
	if !kind.Valid() {
		return fmt.Errorf("theatre: unknown option directory %q", kind)
	}
	d.mu.Lock()
	d.search[kind] = text
	deb := d.debouncers[kind]
	d.mu.Unlock()

	deb.Trigger(func() {
		_ = d.RefreshOne(d.w.ctx(), kind)
	})
	return nil
}

// RefreshOne refetches a single directory. A failure clears every directory.
func (d *OptionDirectories) RefreshOne(ctx context.Context, kind OptionKind) error {
	c, ok := d.w.readGate()
	if !ok || d.w.references == nil {
		return nil
	}
	opts, err := d.fetch(ctx, kind, c)
	if err != nil {
		d.clear(err, kind)
		return err
	}
	d.w.mu.Lock()
	d.w.state.Options[kind] = opts
	d.w.mu.Unlock()
	d.w.notify()
	return nil
}

// Refresh fetches all four directories together and publishes them only if
// every fetch succeeded; otherwise all four are cleared.
func (d *OptionDirectories) Refresh(ctx context.Context) error {
	c, ok := d.w.readGate()
	if !ok || d.w.references == nil {
		return nil
	}

	results := make([][]Option, len(optionKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range optionKinds {
		i, kind := i, kind
		g.Go(func() error {
			opts, err := d.fetch(gctx, kind, c)
			if err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
			results[i] = opts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.clear(err, "")
		return err
	}

	d.w.mu.Lock()
	for i, kind := range optionKinds {
		d.w.state.Options[kind] = results[i]
	}
	d.w.mu.Unlock()
	d.w.notify()
	return nil
}

// Options returns a copy of one directory's current options.
func (d *OptionDirectories) Options(kind OptionKind) []Option {
	d.w.mu.RLock()
	defer d.w.mu.RUnlock()
	return append([]Option(nil), d.w.state.Options[kind]...)
}

func (d *OptionDirectories) clear(err error, kind OptionKind) {
	d.w.mu.Lock()
	d.w.state.Options = emptyOptions()
	d.w.mu.Unlock()
	d.w.notify()
	d.w.logger.Error().Err(err).Str("directory", string(kind)).Msg("option directory fetch failed; cleared all directories")
}

func (d *OptionDirectories) cancel() {
	for _, deb := range d.debouncers {
		deb.Cancel()
	}
}
