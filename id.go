package voteflow

import "github.com/voteflow/voteflow/id"

// ID is the primary identifier type for all voteflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
