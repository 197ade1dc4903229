// Package assets keeps the host editor's asset registry: which asset paths
// exist and which script class each one is an instance of.
package assets

import "sort"

// Replacement is a script literal asset body the host asked to rewrite.
type Replacement struct {
	Asset string
	Lines []string
}

type Database struct {
	classByAsset    map[string]string
	assetsByClass   map[string]map[string]struct{}
	replacements    map[string]Replacement
	receiving       bool
	completedBefore bool
}

func NewDatabase() *Database {
	return &Database{
		classByAsset:  make(map[string]string),
		assetsByClass: make(map[string]map[string]struct{}),
		replacements:  make(map[string]Replacement),
	}
}

// Clear drops every asset ahead of a fresh snapshot.
func (d *Database) Clear() {
	d.classByAsset = make(map[string]string)
	d.assetsByClass = make(map[string]map[string]struct{})
	d.receiving = true
}

// Add records assetPath as an instance of className, replacing any previous class.
func (d *Database) Add(assetPath, className string) {
	if className == "" {
		d.Remove(assetPath)
		return
	}
	d.Remove(assetPath)
	d.classByAsset[assetPath] = className
	set, ok := d.assetsByClass[className]
	if !ok {
		set = make(map[string]struct{})
		d.assetsByClass[className] = set
	}
	set[assetPath] = struct{}{}
}

func (d *Database) Remove(assetPath string) {
	className, ok := d.classByAsset[assetPath]
	if !ok {
		return
	}
	delete(d.classByAsset, assetPath)
	if set := d.assetsByClass[className]; set != nil {
		delete(set, assetPath)
		if len(set) == 0 {
			delete(d.assetsByClass, className)
		}
	}
}

// Finish marks the end of a snapshot.
func (d *Database) Finish() {
	d.receiving = false
	d.completedBefore = true
}

// Complete reports whether at least one full snapshot has been received and
// none is currently streaming in.
func (d *Database) Complete() bool {
	return d.completedBefore && !d.receiving
}

func (d *Database) ClassOf(assetPath string) (string, bool) {
	c, ok := d.classByAsset[assetPath]
	return c, ok
}

// AssetsImplementing returns the sorted asset paths whose class is className.
func (d *Database) AssetsImplementing(className string) []string {
	set := d.assetsByClass[className]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (d *Database) Len() int {
	return len(d.classByAsset)
}

// ReplaceDefinition records new content for a script literal asset. The
// latest request per asset wins until it is taken.
func (d *Database) ReplaceDefinition(asset string, lines []string) {
	d.replacements[asset] = Replacement{Asset: asset, Lines: append([]string(nil), lines...)}
}

// TakeReplacements returns and clears pending replacements, sorted by asset.
func (d *Database) TakeReplacements() []Replacement {
	out := make([]Replacement, 0, len(d.replacements))
	for _, r := range d.replacements {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	d.replacements = make(map[string]Replacement)
	return out
}
