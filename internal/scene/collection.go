package scene

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/forest-guardian/leaf-mosaic/internal/raster"
	"github.com/forest-guardian/leaf-mosaic/internal/sensor"
)

// DefaultWorkers bounds concurrent scene loads during Materialize.
const DefaultWorkers = 8

var ErrNoLoader = errors.New("scene has no loader")

// Observation is a materialized scene: its metadata plus the raster derived
// from it by the collection steps.
type Observation struct {
	Scene Scene
	Image *raster.Image
}

// Step derives a new observation from a loaded one. Steps must not modify
// the input image.
type Step func(Observation) (Observation, error)

type entry struct {
	scene Scene
	steps []Step
}

// Collection is an ordered lazy sequence of scenes over one window. Filter,
// Map and Merge only rearrange descriptions; Materialize loads and evaluates.
type Collection struct {
	desc    sensor.Descriptor
	start   time.Time
	end     time.Time
	entries []entry
}

// NewCollection orders scenes by acquisition time.
func NewCollection(desc sensor.Descriptor, start, end time.Time, scenes []Scene) *Collection {
	c := &Collection{desc: desc, start: start, end: end}
	for _, s := range scenes {
		c.entries = append(c.entries, entry{scene: s})
	}
	c.sort()
	return c
}

func (c *Collection) sort() {
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].scene.Acquired.Before(c.entries[j].scene.Acquired)
	})
}

// Descriptor is the primary descriptor of the collection. Scenes merged from
// a sibling sensor keep their own descriptor.
func (c *Collection) Descriptor() sensor.Descriptor { return c.desc }

// Window returns the [start, end) interval the collection was selected for.
func (c *Collection) Window() (time.Time, time.Time) { return c.start, c.end }

func (c *Collection) Len() int { return len(c.entries) }

// Scenes returns the scene metadata in collection order.
func (c *Collection) Scenes() []Scene {
	out := make([]Scene, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.scene
	}
	return out
}

func (c *Collection) derive(entries []entry) *Collection {
	return &Collection{desc: c.desc, start: c.start, end: c.end, entries: entries}
}

// Filter keeps the scenes for which keep returns true.
func (c *Collection) Filter(keep func(Scene) bool) *Collection {
	var entries []entry
	for _, e := range c.entries {
		if keep(e.scene) {
			entries = append(entries, e)
		}
	}
	return c.derive(entries)
}

// Map appends a step to every scene.
func (c *Collection) Map(step Step) *Collection {
	entries := make([]entry, len(c.entries))
	for i, e := range c.entries {
		steps := make([]Step, len(e.steps), len(e.steps)+1)
		copy(steps, e.steps)
		entries[i] = entry{scene: e.scene, steps: append(steps, step)}
	}
	return c.derive(entries)
}

// Merge returns the union of both collections ordered by acquisition time.
// Each scene keeps the steps it was mapped with; the receiver's descriptor
// and window are kept.
func (c *Collection) Merge(o *Collection) *Collection {
	entries := make([]entry, 0, len(c.entries)+len(o.entries))
	entries = append(entries, c.entries...)
	entries = append(entries, o.entries...)
	out := c.derive(entries)
	out.sort()
	return out
}

// Materialize loads every scene onto grid and runs its steps, with at most
// workers loads in flight. Observations come back in collection order; the
// first error aborts the remaining work.
func (c *Collection) Materialize(ctx context.Context, grid raster.Grid, workers int) ([]Observation, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		out      = make([]Observation, len(c.entries))
		firstErr error
		once     sync.Once
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	wp := workerpool.New(workers)
	for i, e := range c.entries {
		i, e := i, e
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			obs, err := evaluate(ctx, e, grid)
			if err != nil {
				fail(fmt.Errorf("scene %s: %w", e.scene.ID, err))
				return
			}
			out[i] = obs
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func evaluate(ctx context.Context, e entry, grid raster.Grid) (Observation, error) {
	if e.scene.Loader == nil {
		return Observation{}, ErrNoLoader
	}
	img, err := e.scene.Loader.Load(ctx, e.scene, grid)
	if err != nil {
		return Observation{}, err
	}
	obs := Observation{Scene: e.scene, Image: img}
	for _, step := range e.steps {
		if obs, err = step(obs); err != nil {
			return Observation{}, err
		}
	}
	return obs, nil
}
