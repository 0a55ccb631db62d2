// Package kg holds the canonical shape of a knowledge-graph retrieval row.
//
// Backends hand rows over in whatever shape their driver produces; NormalizeRow
// turns those into a Row so nothing downstream has to care which backend
// answered.
package kg

// Entity is a node of the knowledge graph as seen by the QA pipeline.
type Entity struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	SourcePDF   string `json:"source_pdf"`
}

// Relation is the edge leaving an entity.
type Relation struct {
	Type string `json:"type"`
}

// Target is the entity at the far end of a Relation.
type Target struct {
	Name string `json:"name"`
}

// Row is one retrieval result. Every part is optional.
type Row struct {
	Entity   *Entity   `json:"e,omitempty"`
	Relation *Relation `json:"r,omitempty"`
	Target   *Target   `json:"x,omitempty"`
}

// Key identifies a row for de-duplication when strategies are merged.
func (r Row) Key() string {
	var uid, rel, target string
	if r.Entity != nil {
		uid = r.Entity.UID
	}
	if r.Relation != nil {
		rel = r.Relation.Type
	}
	if r.Target != nil {
		target = r.Target.Name
	}
	return uid + "|" + rel + "|" + target
}
