package routecache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

var errCorruptRecord = errors.New("corrupt record")

// on-disk form of a route. The hash is written last, so that a
// truncated file never validates.
type record struct {
	Route    string            `yaml:"route"`
	FnName   string            `yaml:"fn_name"`
	FnBody   string            `yaml:"fn_body"`
	Args     []string          `yaml:"args,omitempty"`
	Config   map[string]string `yaml:"cfg,omitempty"`
	Status   int               `yaml:"status,omitempty"`
	Created  string            `yaml:"created"`
	Expires  string            `yaml:"expires"`
	Cache    string            `yaml:"cache"`
	StartPos int               `yaml:"start_pos"`
	EndPos   int               `yaml:"end_pos"`
	Hash     string            `yaml:"hash"`
}

func encode(r *Route) ([]byte, error) {
	return yaml.Marshal(&record{
		Route:    r.Pattern,
		FnName:   r.FnName,
		FnBody:   r.FnBody,
		Args:     r.Args,
		Config:   r.Config,
		Status:   r.Status,
		Created:  r.Created.UTC().Format(time.RFC3339Nano),
		Expires:  r.Expires.UTC().Format(time.RFC3339Nano),
		Cache:    r.CachePath,
		StartPos: r.StartLine,
		EndPos:   r.EndLine,
		Hash:     r.Hash,
	})
}

func decode(b []byte) (*Route, error) {
	var rec record
	if err := yaml.Unmarshal(b, &rec); err != nil {
		return nil, err
	}

	if rec.Hash == "" || rec.Hash != contentHash(rec.Route, rec.FnName, rec.FnBody) {
		return nil, errCorruptRecord
	}

	created, err := time.Parse(time.RFC3339Nano, rec.Created)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid created time: %v", errCorruptRecord, err)
	}

	expires, err := time.Parse(time.RFC3339Nano, rec.Expires)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid expiry time: %v", errCorruptRecord, err)
	}

	return &Route{
		Pattern:   rec.Route,
		FnName:    rec.FnName,
		FnBody:    rec.FnBody,
		Args:      rec.Args,
		Config:    rec.Config,
		Status:    rec.Status,
		Hash:      rec.Hash,
		Created:   created,
		Expires:   expires,
		CachePath: rec.Cache,
		StartLine: rec.StartPos,
		EndLine:   rec.EndPos,
	}, nil
}

func readRecord(path string) (*Route, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return decode(b)
}
