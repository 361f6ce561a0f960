package summary

import "time"

// GradeSummary is the denormalized per-class, per-student grade report.
// It is stored under Key(ClassID, StudentID).
type GradeSummary struct {
	ClassID   string                `json:"classId" bson:"classId"`
	StudentID string                `json:"studentId" bson:"studentId"`
	ClassName string                `json:"className" bson:"className"`
	Units     map[string]UnitBucket `json:"units" bson:"units"`
	UpdatedAt time.Time             `json:"updatedAt" bson:"updatedAt"`
	Version   int64                 `json:"version" bson:"version"`
}

type UnitBucket struct {
	Subjects map[string]SubjectBucket `json:"subjects" bson:"subjects"`
}

// SubjectBucket keeps TotalPoints equal to the sum of Activities[i].Grade.
type SubjectBucket struct {
	Activities  []ActivityGradeEntry `json:"activities" bson:"activities"`
	TotalPoints float64              `json:"totalPoints" bson:"totalPoints"`
}

type ActivityGradeEntry struct {
	ID        string  `json:"id" bson:"id"`
	Title     string  `json:"title" bson:"title"`
	Grade     float64 `json:"grade" bson:"grade"`
	MaxPoints float64 `json:"maxPoints" bson:"maxPoints"`
	Materia   string  `json:"materia" bson:"materia"`
}

// GradeInput is one graded activity to fold into a summary.
type GradeInput struct {
	ActivityID string
	Title      string
	Grade      float64
	MaxPoints  float64
	Unit       string
	Subject    string
}

// Key returns the document key shared with existing deployments.
func Key(classID, studentID string) string {
	return classID + "_" + studentID
}

// Bucket returns the subject bucket for unit/subject, if present.
func (s *GradeSummary) Bucket(unit, subject string) (SubjectBucket, bool) {
	if s == nil {
		return SubjectBucket{}, false
	}
	u, ok := s.Units[unit]
	if !ok {
		return SubjectBucket{}, false
	}
	b, ok := u.Subjects[subject]
	return b, ok
}

// Clone returns a deep copy.
func (s *GradeSummary) Clone() *GradeSummary {
	if s == nil {
		return nil
	}
	out := *s
	out.Units = make(map[string]UnitBucket, len(s.Units))
	for unitName, u := range s.Units {
		subjects := make(map[string]SubjectBucket, len(u.Subjects))
		for subjectName, b := range u.Subjects {
			acts := make([]ActivityGradeEntry, len(b.Activities))
			copy(acts, b.Activities)
			subjects[subjectName] = SubjectBucket{Activities: acts, TotalPoints: b.TotalPoints}
		}
		out.Units[unitName] = UnitBucket{Subjects: subjects}
	}
	return &out
}
