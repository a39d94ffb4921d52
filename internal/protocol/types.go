package protocol

// MessageType is the top-level kind of a server->client message.
type MessageType string

const (
	MessageTypeAsk       MessageType = "ASK"
	MessageTypeError     MessageType = "ERROR"
	MessageTypeProgress  MessageType = "PROGRESS"
	MessageTypeRejection MessageType = "REJECTION"
)

// MessageSubtype is the kind-dependent tag of a message. For ASK messages the
// subtype is the AskKind the result belongs to.
type MessageSubtype string

const (
	SubtypeProgressStarted               MessageSubtype = "STARTED"
	SubtypeProgressInitializationSuccess MessageSubtype = "INITIALIZATION_SUCCESS"
	SubtypeProgressCompleted             MessageSubtype = "COMPLETED"

	SubtypeErrorInternal MessageSubtype = "INTERNAL"

	SubtypeRejectionComplexityExceeded     MessageSubtype = "COMPLEXITY_EXCEEDED"
	SubtypeRejectionPaperSizeLimitExceeded MessageSubtype = "PAPER_SIZE_LIMIT_EXCEEDED"
)

// ValidSubtype reports whether subtype belongs to the family of t.
func ValidSubtype(t MessageType, subtype MessageSubtype) bool {
	switch t {
	case MessageTypeProgress:
		switch subtype {
		case SubtypeProgressStarted, SubtypeProgressInitializationSuccess, SubtypeProgressCompleted:
			return true
		}
		return false
	case MessageTypeError:
		return subtype == SubtypeErrorInternal
	case MessageTypeRejection:
		switch subtype {
		case SubtypeRejectionComplexityExceeded, SubtypeRejectionPaperSizeLimitExceeded:
			return true
		}
		return false
	case MessageTypeAsk:
		_, ok := ParseAskKind(string(subtype))
		return ok
	default:
		return false
	}
}

// Action is a client->server control command verb.
type Action string

const (
	ActionInitialize Action = "INITIALIZE"
	ActionRead       Action = "READ"
)

// FileKind names an associated file uploaded on the data channel.
type FileKind string

const (
	FileKindDrawing FileKind = "drawing"
	FileKindModel   FileKind = "model"
)

// Architecture identifies a server-side processing architecture.
type Architecture string

const (
	ArchitectureGPUV1 Architecture = "GPU_V1"
	ArchitectureCPUV1 Architecture = "CPU_V1"
)

// ArchitectureStatus is the deployment state of an Architecture.
type ArchitectureStatus string

const (
	ArchitectureDeployed    ArchitectureStatus = "DEPLOYED"
	ArchitectureDeploying   ArchitectureStatus = "DEPLOYING"
	ArchitectureUndeployed  ArchitectureStatus = "UNDEPLOYED"
	ArchitectureUndeploying ArchitectureStatus = "UNDEPLOYING"
)

var architectureStatuses = map[string]ArchitectureStatus{
	"DEPLOYED":    ArchitectureDeployed,
	"DEPLOYING":   ArchitectureDeploying,
	"UNDEPLOYED":  ArchitectureUndeployed,
	"UNDEPLOYING": ArchitectureUndeploying,
}

// ParseArchitectureStatus maps a server status string onto the closed set.
// Unknown strings are not defaulted.
func ParseArchitectureStatus(raw string) (ArchitectureStatus, bool) {
	status, ok := architectureStatuses[raw]
	return status, ok
}
