package graphstore

// Domain partitions the graph into two closed label/relation universes. A
// write naming a label outside its domain is rejected — the partition is
// enforced here, not left to callers.
type Domain string

const (
	DomainLife Domain = "life"
	DomainWork Domain = "work"
)

// NodeLabel is a closed node-label enumeration. There is no mechanism to
// register additional labels at runtime.
type NodeLabel string

const (
	LabelPerson   NodeLabel = "Person"
	LabelEvent    NodeLabel = "Event"
	LabelEmotion  NodeLabel = "Emotion"
	LabelInterest NodeLabel = "Interest"
	LabelLocation NodeLabel = "Location"
	LabelMemory   NodeLabel = "Memory"
	LabelTopic    NodeLabel = "Topic"

	LabelProject   NodeLabel = "Project"
	LabelTask      NodeLabel = "Task"
	LabelDocument  NodeLabel = "Document"
	LabelMeeting   NodeLabel = "Meeting"
	LabelConcept   NodeLabel = "Concept"
	LabelMilestone NodeLabel = "Milestone"
	LabelIssue     NodeLabel = "Issue"

	// LabelEntity is the shared fallback label available to both domains.
	LabelEntity NodeLabel = "Entity"
)

// RelationType is a closed edge-relation enumeration.
type RelationType string

const (
	RelKnows        RelationType = "KNOWS"
	RelFamily       RelationType = "FAMILY"
	RelFriend       RelationType = "FRIEND"
	RelAttends      RelationType = "ATTENDS"
	RelFeels        RelationType = "FEELS"
	RelInterestedIn RelationType = "INTERESTED_IN"
	RelHappenedAt   RelationType = "HAPPENED_AT"
	RelLocatedIn    RelationType = "LOCATED_IN"
	RelRemembers    RelationType = "REMEMBERS"
	RelDiscusses    RelationType = "DISCUSSES"
	RelRelatesTo    RelationType = "RELATES_TO"

	RelWorksOn     RelationType = "WORKS_ON"
	RelDependsOn   RelationType = "DEPENDS_ON"
	RelBelongsTo   RelationType = "BELONGS_TO"
	RelReferences  RelationType = "REFERENCES"
	RelAssignedTo  RelationType = "ASSIGNED_TO"
	RelParticipate RelationType = "PARTICIPATES"
	RelContains    RelationType = "CONTAINS"
	RelBlocks      RelationType = "BLOCKS"
	RelMentions    RelationType = "MENTIONS"
	RelAchieves    RelationType = "ACHIEVES"

	// RelLinkedTo and RelCreatedBy are generic relations available to both
	// domains, mirroring LabelEntity's role for nodes.
	RelLinkedTo  RelationType = "LINKED_TO"
	RelCreatedBy RelationType = "CREATED_BY"
)

var lifeLabels = map[NodeLabel]struct{}{
	LabelPerson: {}, LabelEvent: {}, LabelEmotion: {}, LabelInterest: {},
	LabelLocation: {}, LabelMemory: {}, LabelTopic: {},
}

var workLabels = map[NodeLabel]struct{}{
	LabelProject: {}, LabelTask: {}, LabelDocument: {}, LabelMeeting: {},
	LabelConcept: {}, LabelMilestone: {}, LabelIssue: {},
}

var sharedRelations = map[RelationType]struct{}{
	RelLinkedTo: {}, RelCreatedBy: {},
}

// AllowsLabel reports whether label may be written by a pipeline scoped to d.
// [LabelEntity] is always allowed regardless of domain.
func (d Domain) AllowsLabel(label NodeLabel) bool {
	if label == LabelEntity {
		return true
	}
	switch d {
	case DomainLife:
		_, ok := lifeLabels[label]
		return ok
	case DomainWork:
		_, ok := workLabels[label]
		return ok
	default:
		return false
	}
}

// AllowsRelation reports whether relation may be written by a pipeline
// scoped to d. The shared relations ([RelLinkedTo], [RelCreatedBy]) are
// always allowed.
func (d Domain) AllowsRelation(relation RelationType) bool {
	if _, ok := sharedRelations[relation]; ok {
		return true
	}
	switch d {
	case DomainLife:
		switch relation {
		case RelKnows, RelFamily, RelFriend, RelAttends, RelFeels, RelInterestedIn,
			RelHappenedAt, RelLocatedIn, RelRemembers, RelDiscusses, RelRelatesTo:
			return true
		}
		return false
	case DomainWork:
		switch relation {
		case RelWorksOn, RelDependsOn, RelBelongsTo, RelReferences, RelAssignedTo,
			RelParticipate, RelContains, RelBlocks, RelMentions, RelAchieves:
			return true
		}
		return false
	default:
		return false
	}
}

// LifeLabels returns the closed set of life-domain node labels.
func LifeLabels() []NodeLabel {
	return []NodeLabel{LabelPerson, LabelEvent, LabelEmotion, LabelInterest, LabelLocation, LabelMemory, LabelTopic}
}

// WorkLabels returns the closed set of work-domain node labels.
func WorkLabels() []NodeLabel {
	return []NodeLabel{LabelProject, LabelTask, LabelDocument, LabelMeeting, LabelConcept, LabelMilestone, LabelIssue}
}
