package routing

import (
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/routecache"
)

type incomingType uint

const (
	incomingReset incomingType = iota
	incomingUpdate
)

func (it incomingType) String() string {
	switch it {
	case incomingReset:
		return "reset"
	case incomingUpdate:
		return "update"
	default:
		return "unknown"
	}
}

type definitionsByKey map[string]*dsl.Definition

type incomingData struct {
	typ         incomingType
	client      int
	upserted    []*dsl.Definition
	deletedKeys []string
}

// DefinitionKey returns the key identifying a definition across updates,
// the same as the cache key of the route created from it.
func DefinitionKey(d *dsl.Definition) string {
	return routecache.Key(routecache.FromDefinition(d))
}

func (r *Routing) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.options.PollTimeout / 10
	b.MaxInterval = r.options.PollTimeout
	return b
}

func (r *Routing) send(out chan<- *incomingData, d *incomingData) bool {
	select {
	case out <- d:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Routing) receiveInitial(client int, c DataClient, out chan<- *incomingData) bool {
	defs, err := backoff.Retry(
		r.ctx,
		c.LoadAll,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.log.Errorf("error while receiving initial data, retrying in %v: %v", next, err)
		}),
	)

	if err != nil {
		return false
	}

	return r.send(out, &incomingData{typ: incomingReset, client: client, upserted: defs})
}

func (r *Routing) receiveUpdates(client int, c DataClient, out chan<- *incomingData) bool {
	for {
		select {
		case <-time.After(r.options.PollTimeout):
		case <-r.ctx.Done():
			return false
		}

		defs, deletedKeys, err := c.LoadUpdate()
		if err != nil {
			r.log.Errorf("error while receiving update: %v", err)
			return true
		}

		if len(defs) == 0 && len(deletedKeys) == 0 {
			continue
		}

		d := &incomingData{typ: incomingUpdate, client: client, upserted: defs, deletedKeys: deletedKeys}
		if !r.send(out, d) {
			return false
		}
	}
}

func (r *Routing) receiveFromClient(client int, c DataClient, out chan<- *incomingData) {
	for r.receiveInitial(client, c, out) && r.receiveUpdates(client, c, out) {
	}
}

func applyIncoming(defs definitionsByKey, d *incomingData) definitionsByKey {
	if d.typ == incomingReset || defs == nil {
		defs = make(definitionsByKey)
	}

	if d.typ == incomingUpdate {
		for _, key := range d.deletedKeys {
			delete(defs, key)
		}
	}

	for _, def := range d.upserted {
		defs[DefinitionKey(def)] = def
	}

	return defs
}

// definitions of later clients override the earlier ones with the same key
func mergeDefs(defsByClient []definitionsByKey) []*dsl.Definition {
	merged := make(definitionsByKey)
	for _, defs := range defsByClient {
		for key, def := range defs {
			merged[key] = def
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	all := make([]*dsl.Definition, 0, len(keys))
	for _, key := range keys {
		all = append(all, merged[key])
	}

	return all
}

func (r *Routing) receiveDefinitions() {
	clients := r.options.DataClients
	in := make(chan *incomingData)
	for i, c := range clients {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.receiveFromClient(i, c, in)
		}()
	}

	defsByClient := make([]definitionsByKey, len(clients))
	initialized := make([]bool, len(clients))
	pending := len(clients)
	for {
		var incoming *incomingData
		select {
		case incoming = <-in:
		case <-r.ctx.Done():
			return
		}

		c := incoming.client
		defsByClient[c] = applyIncoming(defsByClient[c], incoming)
		r.log.Debugf("received %s from data client %d", incoming.typ, c)
		if !initialized[c] {
			initialized[c] = true
			pending--
		}

		// the routes are committed only when every client delivered its
		// initial set
		if pending > 0 {
			continue
		}

		if err := r.Reload(mergeDefs(defsByClient)); err != nil {
			r.log.Errorf("failed to reload routes: %v", err)
			continue
		}

		r.signalFirstLoad()
	}
}
