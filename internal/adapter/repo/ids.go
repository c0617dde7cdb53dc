package repo

import "github.com/google/uuid"

// validID reports whether id can be compared against a uuid column. Malformed
// ids would otherwise fail the cast inside Postgres.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
