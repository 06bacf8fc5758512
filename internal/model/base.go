package model

import "github.com/google/uuid"

// assignID fills a zero primary key before insert. IDs are generated in Go so the
// schema does not depend on gen_random_uuid() being available.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func initVersion(v *int) {
	if *v == 0 {
		*v = 1
	}
}
