package document

import "time"

// Document is the head record of a versioned document (a policy or a static
// page). Title, Category and Status mirror the latest version so listings do
// not need to read history.
type Document struct {
	ID                   string    `json:"id" bson:"_id"`
	Title                string    `json:"title" bson:"title"`
	Category             string    `json:"category,omitempty" bson:"category,omitempty"`
	Status               Status    `json:"status" bson:"status"`
	CurrentVersionNumber int       `json:"currentVersionNumber" bson:"currentVersionNumber"`
	CreatedAt            time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Metadata describes who produced a version and why.
type Metadata struct {
	Author        string    `json:"author" bson:"author"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	ChangeSummary string    `json:"changeSummary,omitempty" bson:"changeSummary,omitempty"`
	// RevertedFrom is set when the version was produced by a revert.
	RevertedFrom int `json:"revertedFrom,omitempty" bson:"revertedFrom,omitempty"`
}

// Version is an immutable snapshot of a document. Versions are never updated
// or deleted once stored.
type Version struct {
	DocumentID    string   `json:"documentId" bson:"documentId"`
	VersionNumber int      `json:"versionNumber" bson:"versionNumber"`
	Title         string   `json:"title" bson:"title"`
	Category      string   `json:"category,omitempty" bson:"category,omitempty"`
	Content       string   `json:"content" bson:"content"`
	Status        Status   `json:"status" bson:"status"`
	Metadata      Metadata `json:"metadata" bson:"metadata"`
}

// Clone returns a copy that shares no mutable state with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Clone returns a copy of v.
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
