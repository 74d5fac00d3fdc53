package cultivation

import (
	"errors"

	"github.com/udisondev/cultivation/internal/model"
)

// Precondition errors: исправимы игроком, возвращаются как есть.
var (
	ErrCharacterNotFound      = errors.New("character not found")
	ErrUnknownGate            = errors.New("unknown tribulation gate")
	ErrWrongRealm             = errors.New("character is not at the realm required by this gate")
	ErrInsufficientExperience = errors.New("not enough experience")
	ErrMissingItems           = errors.New("required tribulation items missing")
	ErrInsufficientItems      = errors.New("insufficient items")
	ErrLadderEnd              = errors.New("no further realm to advance to")
)

// ErrRealmMissing signals ladder data that does not cover a reachable position.
var ErrRealmMissing = errors.New("realm level missing from ladder")

// Rollback eligibility errors, in the order they are checked.
var (
	ErrRecordNotFound    = errors.New("tribulation record not found")
	ErrNothingToRollback = errors.New("nothing to roll back")
	ErrAlreadyRolledBack = errors.New("already rolled back")
	ErrRollbackExpired   = errors.New("rollback window expired")
	ErrNoSnapshot        = errors.New("no snapshot")
	ErrUserOccupied      = errors.New("user occupied")
	ErrNameTaken         = errors.New("name collision")
)

// Operator identity errors of AdminRollback.
var (
	ErrOperatorRequired = errors.New("operator identity required")
	ErrOperatorTooLong  = errors.New("operator identity too long")
)

var messages = map[error]string{
	ErrCharacterNotFound:      "Character not found.",
	ErrUnknownGate:            "No such tribulation.",
	ErrWrongRealm:             "Your cultivation is not at the threshold of this tribulation.",
	ErrInsufficientExperience: "Your cultivation is not yet deep enough to face the tribulation.",
	ErrMissingItems:           "You lack the items required to face the tribulation.",
	ErrInsufficientItems:      "You lack the items required to face the tribulation.",
	ErrLadderEnd:              "You stand at the peak of the known realms.",
	ErrRealmMissing:           "The path ahead is unknown.",
	ErrRecordNotFound:         "Tribulation record not found.",
	ErrNothingToRollback:      "The tribulation succeeded; there is nothing to roll back.",
	ErrAlreadyRolledBack:      "This tribulation has already been rolled back.",
	ErrRollbackExpired:        "The rollback window for this tribulation has expired.",
	ErrNoSnapshot:             "No snapshot was stored for this tribulation.",
	ErrUserOccupied:           "The user already has a living character.",
	ErrNameTaken:              "The character name is already taken.",
	ErrOperatorRequired:       "An operator identity is required.",
	ErrOperatorTooLong:        "The operator identity is too long.",
	model.ErrSnapshotInvalid:  "The stored snapshot cannot restore this character.",
}

// Message returns a human-readable message for expected rejections,
// or a generic one for system failures.
func Message(err error) string {
	for target, msg := range messages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return "Internal error, please try again later."
}

// IsRejection reports whether err is an expected, user-facing rejection
// rather than a system failure.
func IsRejection(err error) bool {
	for target := range messages {
		if errors.Is(err, target) && target != ErrRealmMissing {
			return true
		}
	}
	return false
}
