package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReportExport records one archived statistics CSV: who requested it, the
// filter it was built from, and where the object landed. The CSV body itself
// lives in object storage, only metadata is kept here.
type ReportExport struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestedBy primitive.ObjectID `bson:"requestedBy" json:"requestedBy"`
	ObjectKey   string             `bson:"objectKey" json:"objectKey"`
	Bucket      string             `bson:"bucket" json:"bucket"`
	ContentType string             `bson:"contentType" json:"contentType"`
	RowCount    int                `bson:"rowCount" json:"rowCount"`
	Filter      StatisticsFilter   `bson:"filter" json:"filter"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
}
