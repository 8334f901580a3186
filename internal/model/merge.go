package model

import (
	"maps"
	"reflect"
	"time"

	"dario.cat/mergo"
)

// scrapedAtTransformer keeps the later of two scrape times
type scrapedAtTransformer struct{}

func (scrapedAtTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf(time.Time{}) {
		return nil
	}
	return func(dst, src reflect.Value) error {
		if !dst.CanSet() {
			return nil
		}
		d, s := dst.Interface().(time.Time), src.Interface().(time.Time)
		if s.After(d) {
			dst.Set(src)
		}
		return nil
	}
}

// Merge fills the empty fields of dst from src. Spec tables are unioned with dst's values
// winning, and the later scrape time is kept. dst's spec map is copied, never modified in place.
func Merge(dst *Bike, src Bike) error {
	dst.Specs = maps.Clone(dst.Specs)
	return mergo.Merge(dst, src, mergo.WithTransformers(scrapedAtTransformer{}))
}
