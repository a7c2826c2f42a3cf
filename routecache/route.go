package routecache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/scriptroute/dsl"
)

// DefaultTTL is the time after which an unchanged route is rewritten on
// the next save.
const DefaultTTL = 3 * time.Hour

// Kind tells how a route is named and where it is stored. It is derived
// from the parsed block and it is not persisted.
type Kind int

const (
	// KindNormal is a function or the index route, stored by its pattern.
	KindNormal Kind = iota

	// KindWildcard is the catch-all route.
	KindWildcard

	// KindNotFound is the route of the 404 block.
	KindNotFound

	// KindStatus is any other status block, e.g. 500.
	KindStatus
)

// Logical keys of the handler routes, accepted by Get.
const (
	NotFoundName      = "not_found"
	WildcardName      = "wildcard"
	InternalErrorName = "internal_err"
	statusNamePrefix  = "status_"
)

func (k Kind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindWildcard:
		return WildcardName
	case KindNotFound:
		return NotFoundName
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Route is a single handler definition as stored in the cache.
type Route struct {

	// Path template, e.g. /greet/{name}. Handler routes have a fixed
	// pattern, e.g. /not_found.
	Pattern string

	// Function name, with '/' and '.' replaced so that it is a valid
	// identifier.
	FnName string

	// Dedented source of the function body.
	FnBody string

	// Ordered parameter names.
	Args []string

	// Options of the cfg attribute.
	Config map[string]string

	// Status code of a status block, otherwise 0.
	Status int

	// Hex md5 of Pattern, FnName and FnBody.
	Hash string

	Created time.Time
	Expires time.Time

	// Location of the record on disk.
	CachePath string

	// Source lines of the body.
	StartLine int
	EndLine   int
}

// StatusName returns the logical handler key of a status code.
func StatusName(code int) string {
	switch code {
	case 404:
		return NotFoundName
	case 500:
		return InternalErrorName
	default:
		return statusNamePrefix + strconv.Itoa(code)
	}
}

// FromDefinition creates an unsaved route from a parsed definition.
func FromDefinition(d *dsl.Definition) (*Route, Kind) {
	r := &Route{
		Pattern:   d.Path,
		FnName:    d.Name,
		FnBody:    d.Body,
		Args:      d.Args,
		Config:    d.Config,
		Status:    d.Status,
		StartLine: d.StartLine,
		EndLine:   d.EndLine,
	}

	switch d.Type {
	case dsl.Wildcard:
		return r, KindWildcard
	case dsl.Status:
		if d.Status == 404 {
			return r, KindNotFound
		}

		return r, KindStatus
	default:
		return r, KindNormal
	}
}

// Key returns the logical key of a route, as accepted by Cache.Get: the
// cleaned pattern of normal routes, and the handler name of the others.
func Key(r *Route, kind Kind) string {
	switch kind {
	case KindNormal:
		return normalizePattern(r.Pattern)
	case KindWildcard:
		return WildcardName
	case KindNotFound:
		return NotFoundName
	default:
		return StatusName(r.Status)
	}
}

// NormalizeName replaces the characters of a function name that cannot
// be part of an identifier.
func NormalizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, ".", "_d")
}

func contentHash(pattern, name, body string) string {
	h := md5.New()
	h.Write([]byte(pattern))
	h.Write([]byte(name))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// Copy returns a deep copy of the route.
func (r *Route) Copy() *Route {
	c := *r
	if r.Args != nil {
		c.Args = append([]string(nil), r.Args...)
	}

	if r.Config != nil {
		c.Config = make(map[string]string, len(r.Config))
		for k, v := range r.Config {
			c.Config[k] = v
		}
	}

	return &c
}

// Callable returns the function declaration handed to the executor,
// e.g. fn greet(name){"hi " + name}.
func (r *Route) Callable() string {
	return fmt.Sprintf("fn %s(%s){%s}", r.FnName, strings.Join(r.Args, ", "), r.FnBody)
}

// Placeholders returns the number of placeholder segments in the
// pattern.
func (r *Route) Placeholders() int {
	return len(dsl.Placeholders(r.Pattern))
}

// ConfigValue returns an option of the cfg attribute.
func (r *Route) ConfigValue(key string) (string, bool) {
	v, ok := r.Config[key]
	return v, ok
}

// Truthy tells whether a cfg option is set to true, 1, yes or on.
func (r *Route) Truthy(key string) bool {
	v, _ := r.ConfigValue(key)
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// Expired tells whether the route's TTL has passed at t.
func (r *Route) Expired(t time.Time) bool {
	return !t.Before(r.Expires)
}

func sortRoutes(r []*Route) {
	sort.Slice(r, func(i, j int) bool {
		if r[i].Pattern == r[j].Pattern {
			return r[i].Hash < r[j].Hash
		}

		return r[i].Pattern < r[j].Pattern
	})
}
