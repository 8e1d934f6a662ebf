package api

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the structural `validate` tags on the record. The replica
// rejects a whole push batch when any record fails; content semantics past
// this point are the client's responsibility.
func (r *SyncRecord) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}
	return nil
}

// Validate checks every record in the batch.
func (p *PushRequest) Validate() error {
	for i := range p.Records {
		if err := p.Records[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
