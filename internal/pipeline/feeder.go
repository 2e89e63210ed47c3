package pipeline

import "cloudpico-bridge/internal/record"

// Feeder is the sink a Generator writes into. It holds one record back so
// that the generator can keep filling it after Next returns; the held record
// is flushed to the composer on the following Next or when expansion ends.
type Feeder struct {
	comp    *Composer
	cache   *Cache
	onClose func()

	pending    record.Record
	hasPending bool
	dropped    int
}

func newFeeder(comp *Composer, cache *Cache, onClose func()) *Feeder {
	return &Feeder{comp: comp, cache: cache, onClose: onClose}
}

// Next implements record.Allocator.
func (f *Feeder) Next(field record.Field, typ record.Type, typeInfo, extra uint8) *record.Record {
	f.flush()
	f.pending.Init(field, typ, typeInfo, extra)
	f.hasPending = true
	return &f.pending
}

func (f *Feeder) flush() {
	if !f.hasPending {
		return
	}
	f.hasPending = false
	if f.pending.Type() == record.TypeGenerator {
		// generators do not nest
		f.dropped++
		return
	}
	f.comp.Add(&f.pending, f.cache)
	if f.pending.IsClosed() {
		f.onClose()
	}
}

// Expand runs the generator referenced by gen. It reports false when the
// reference does not resolve.
func (f *Feeder) Expand(gen *record.Record) bool {
	g := f.cache.reg.Generator(gen.Ref(0))

	saved := f.cache.generatorActive
	f.cache.generatorActive = true
	if g != nil {
		g(f, gen, f.cache)
	}
	// The last generated record closes the generator's own message, so the
	// cache must see it with the outer state restored.
	if gen.IsClosed() {
		f.cache.generatorActive = saved
	}

	if f.hasPending {
		if gen.CloseComplex() {
			f.pending.SetCloseComplex()
		}
		if gen.IsClosed() {
			f.pending.Close()
		}
		f.flush()
	} else if gen.IsClosed() {
		f.onClose()
	}
	f.cache.generatorActive = saved
	return g != nil
}
