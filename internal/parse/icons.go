package parse

import "github.com/msageha/taskscope/internal/model"

// Kind is the closed set of payload grammars a field icon can introduce.
type Kind int

const (
	KindDate Kind = iota
	KindPriority
	KindID
	KindDependency
	KindCompletion
	KindRecurrence
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindPriority:
		return "priority"
	case KindID:
		return "id"
	case KindDependency:
		return "dependency"
	case KindCompletion:
		return "completion"
	case KindRecurrence:
		return "recurrence"
	default:
		return "unknown"
	}
}

// Property names reported in field errors and used to route date payloads.
const (
	PropDue          = "dueDate"
	PropStart        = "startDate"
	PropScheduled    = "scheduledDate"
	PropDone         = "doneDate"
	PropCancelled    = "cancelledDate"
	PropCreated      = "createdDate"
	PropPriority     = "priority"
	PropRecurrence   = "recurrence"
	PropID           = "id"
	PropDependsOn    = "dependsOn"
	PropOnCompletion = "onCompletion"
)

type IconSpec struct {
	Kind     Kind
	Property string
	Priority model.Priority
}

// Soft reports whether a failure of this field leaves the record valid.
func (s IconSpec) Soft() bool {
	return s.Kind == KindRecurrence
}

var icons = map[rune]IconSpec{
	'📅': {Kind: KindDate, Property: PropDue},
	'🛫': {Kind: KindDate, Property: PropStart},
	'⏳': {Kind: KindDate, Property: PropScheduled},
	'✅': {Kind: KindDate, Property: PropDone},
	'❌': {Kind: KindDate, Property: PropCancelled},
	'➕': {Kind: KindDate, Property: PropCreated},
	'⏬': {Kind: KindPriority, Property: PropPriority, Priority: model.PriorityLowest},
	'🔽': {Kind: KindPriority, Property: PropPriority, Priority: model.PriorityLow},
	'🔼': {Kind: KindPriority, Property: PropPriority, Priority: model.PriorityMedium},
	'⏫': {Kind: KindPriority, Property: PropPriority, Priority: model.PriorityHigh},
	'🔺': {Kind: KindPriority, Property: PropPriority, Priority: model.PriorityHighest},
	'🔁': {Kind: KindRecurrence, Property: PropRecurrence},
	'🆔': {Kind: KindID, Property: PropID},
	'⛔': {Kind: KindDependency, Property: PropDependsOn},
	'🏁': {Kind: KindCompletion, Property: PropOnCompletion},
}

const variationSelector = '\uFE0F'

// LookupIcon returns the spec registered for glyph.
func LookupIcon(glyph string) (IconSpec, bool) {
	r := []rune(glyph)
	if len(r) == 0 || len(r) > 2 || (len(r) == 2 && r[1] != variationSelector) {
		return IconSpec{}, false
	}
	spec, ok := icons[r[0]]
	return spec, ok
}
