package farmers

import (
	"fmt"
	"strconv"

	"github.com/talgya/farm-agents/internal/store"
)

// Buckets returns the checkpoint buckets of the population and its land.
func (f *Farmers) Buckets() []*store.Bucket {
	return []*store.Bucket{f.bucket, f.networkBucket, f.land.Bucket()}
}

// Save writes the population, its social network and its land under dir.
func (f *Farmers) Save(dir string, format store.Format) error {
	f.bucket.SetMeta("day", strconv.Itoa(int(f.day)))
	f.bucket.SetMeta("relations_fitted", strconv.FormatBool(f.fitted))
	for _, b := range f.Buckets() {
		if err := b.Save(dir, format); err != nil {
			return fmt.Errorf("save %s: %w", b.Name(), err)
		}
	}
	return nil
}

// Load restores a checkpoint written by Save. Every column takes the length
// and capacity recorded in the checkpoint.
func (f *Farmers) Load(dir string) error {
	for _, b := range f.Buckets() {
		if err := b.Load(dir); err != nil {
			return fmt.Errorf("load %s: %w", b.Name(), err)
		}
	}
	if v, ok := f.bucket.Meta("day"); ok {
		day, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("checkpoint day %q: %w", v, err)
		}
		f.day = int32(day)
	}
	if v, ok := f.bucket.Meta("relations_fitted"); ok {
		f.fitted = v == "true"
	}
	if f.Network.Column().N() != f.N() {
		return fmt.Errorf("checkpoint holds %d agents but %d social network rows", f.N(), f.Network.Column().N())
	}
	if err := f.land.CheckOwners(f.N()); err != nil {
		return err
	}
	return f.reindex()
}

// Day returns the number of days simulated.
func (f *Farmers) Day() int32 { return f.day }
