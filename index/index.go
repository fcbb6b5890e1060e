// Package index opens an index directory, described by a YAML manifest, and
// dispatches query operators to the parts that serve them.
package index

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
	"github.com/bsm/snindex/parts"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownPart is returned when a node names a part which is not in the index.
var ErrUnknownPart = errors.New("index: unknown part")

// Options define index options.
type Options struct {
	// Logger receives open/close events.
	// Default: a logger which discards all output.
	Logger logrus.FieldLogger

	// Metrics are optional.
	Metrics *Metrics

	// MaxConcurrency limits the number of parts opened in parallel.
	// Default: 4
	MaxConcurrency int
}

func (o *Options) norm() *Options {
	var oo Options
	if o != nil {
		oo = *o
	}

	if oo.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		oo.Logger = l
	}
	if oo.MaxConcurrency < 1 {
		oo.MaxConcurrency = 4
	}
	return &oo
}

// Index is a set of named parts.
type Index struct {
	dir     string
	names   []string
	types   map[string]PartType
	parts   map[string]parts.Part
	known   map[string]struct{} // operators served by at least one part
	logger  logrus.FieldLogger
	metrics *Metrics
	closed  atomic.Bool
}

// Open loads the manifest of dir and opens all listed parts.
func Open(dir string, o *Options) (*Index, error) {
	m, err := LoadManifest(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	return OpenManifest(dir, m, o)
}

// OpenManifest opens the parts of m. Part files are relative to dir.
// If a part fails to open, all other parts are closed again.
func OpenManifest(dir string, m *Manifest, o *Options) (*Index, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	o = o.norm()

	idx := &Index{
		dir:     dir,
		names:   make([]string, 0, len(m.Parts)),
		types:   make(map[string]PartType, len(m.Parts)),
		parts:   make(map[string]parts.Part, len(m.Parts)),
		known:   make(map[string]struct{}),
		logger:  o.Logger,
		metrics: o.Metrics,
	}
	ropt := &snindex.ReaderOptions{BlockCacheSize: m.Reader.BlockCacheSize}

	var mu sync.Mutex
	eg := new(errgroup.Group)
	eg.SetLimit(o.MaxConcurrency)
	for _, pc := range m.Parts {
		idx.names = append(idx.names, pc.Name)
		idx.types[pc.Name] = pc.Type

		eg.Go(func() error {
			start := time.Now()
			p, err := openPart(filepath.Join(dir, pc.File), pc, ropt)
			if err != nil {
				return fmt.Errorf("index: open part %q: %w", pc.Name, err)
			}

			mu.Lock()
			idx.parts[pc.Name] = p
			mu.Unlock()

			idx.metrics.partOpened(pc.Type)
			idx.logger.WithFields(logrus.Fields{
				"action": "index_open_part",
				"part":   pc.Name,
				"type":   pc.Type,
				"file":   pc.File,
				"took":   time.Since(start),
			}).Debug("opened index part")
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		idx.logger.WithField("action", "index_open").WithError(err).Error("failed to open index")
		_ = idx.Close()
		return nil, err
	}

	for _, p := range idx.parts {
		for _, op := range p.Operators().Names() {
			idx.known[op] = struct{}{}
		}
	}

	idx.logger.WithFields(logrus.Fields{
		"action": "index_open",
		"dir":    dir,
		"parts":  len(idx.names),
	}).Info("opened index")
	return idx, nil
}

func openPart(name string, pc PartConfig, o *snindex.ReaderOptions) (parts.Part, error) {
	switch pc.Type {
	case PartLengths:
		return parts.OpenLengths(name, o)
	case PartLegacyLengths:
		return parts.OpenLegacyLengths(name)
	case PartIndicator:
		def, err := pc.indicatorDefault()
		if err != nil {
			return nil, err
		}
		return parts.OpenIndicators(name, def, o)
	case PartPrior:
		def, err := pc.priorDefault()
		if err != nil {
			return nil, err
		}
		return parts.OpenPriors(name, def, o)
	case PartPostings:
		return parts.OpenPostings(name, o)
	}
	return nil, fmt.Errorf("%w: unknown part type %q", errBadManifest, pc.Type)
}

// Dir returns the index directory.
func (idx *Index) Dir() string { return idx.dir }

// PartNames returns the part names in manifest order.
func (idx *Index) PartNames() []string {
	return append([]string(nil), idx.names...)
}

// Part returns the named part.
func (idx *Index) Part(name string) (parts.Part, PartType, error) {
	if idx.closed.Load() {
		return nil, "", snindex.ErrClosed
	}

	p, ok := idx.parts[name]
	if !ok {
		return nil, "", fmt.Errorf("%w %q", ErrUnknownPart, name)
	}
	return p, idx.types[name], nil
}

// Iterator creates an iterator for the node. The node may select a part via
// its "part" parameter, otherwise the first part in manifest order which
// supports the operator is used. If no part supports the operator an
// *operator.UnsupportedError is returned.
func (idx *Index) Iterator(n *operator.Node) (dociter.Iterator, error) {
	if idx.closed.Load() {
		return nil, snindex.ErrClosed
	}

	p, err := idx.lookup(n)
	if err != nil {
		return nil, idx.failed(n, err)
	}

	it, err := p.Iterator(n)
	if err != nil {
		return nil, idx.failed(n, err)
	}
	idx.metrics.iteratorCreated(n.Operator)
	return it, nil
}

// failed records unsupported operators. Names no part serves share the
// "other" label.
func (idx *Index) failed(n *operator.Node, err error) error {
	if errors.Is(err, operator.ErrUnsupported) {
		label := "other"
		if _, ok := idx.known[n.Operator]; ok {
			label = n.Operator
		}
		idx.metrics.unsupportedOperator(label)
	}
	return err
}

func (idx *Index) lookup(n *operator.Node) (parts.Part, error) {
	if name := n.Get("part", ""); name != "" {
		p, ok := idx.parts[name]
		if !ok {
			return nil, fmt.Errorf("%w %q", ErrUnknownPart, name)
		}
		return p, nil
	}

	for _, name := range idx.names {
		if p := idx.parts[name]; p.Operators().Supports(n.Operator) {
			return p, nil
		}
	}
	return nil, &operator.UnsupportedError{Name: n.Operator}
}

// Close closes all parts. The index must not be used afterwards.
func (idx *Index) Close() error {
	if !idx.closed.CompareAndSwap(false, true) {
		return snindex.ErrClosed
	}

	var errs []error
	for _, name := range idx.names {
		p, ok := idx.parts[name]
		if !ok {
			continue
		}
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("index: close part %q: %w", name, err))
		}
		delete(idx.parts, name)
	}

	idx.logger.WithField("action", "index_close").Debug("closed index")
	return errors.Join(errs...)
}
