package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/sof-events/constants"
	"github.com/joseph-ayodele/sof-events/db/ent/schema/utils"
)

// ExtractJob is the schema of record for one processed document. The SQL
// under db/migrations must create the same columns.
type ExtractJob struct{ ent.Schema }

func (ExtractJob) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "extract_job"},
	}
}

func (ExtractJob) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).Default(uuid.New).Immutable(),
		field.String("filename").NotEmpty(),
		field.String("format").NotEmpty().
			Validate(utils.EnumValidator(constants.FileTypes...)),
		// hex sha256 of the uploaded bytes
		field.String("content_hash").NotEmpty(),
		field.String("status").
			Validate(utils.EnumValidator(constants.JobStatuses...)),
		field.Time("started_at").Default(time.Now),
		field.Time("finished_at").Optional().Nillable(),
		field.Int("event_count").NonNegative().Default(0),
		field.String("error_message").Optional().Nillable(),
	}
}

func (ExtractJob) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("started_at"),
		index.Fields("content_hash"),
	}
}
