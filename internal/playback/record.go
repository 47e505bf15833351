package playback

import (
	"sort"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

// Pose is one estimation tick from the external pose collaborator.
type Pose struct {
	Joints      biomech.Joints
	Grounding   map[notation.Side]string
	FaceVisible bool
}

// PoseSource supplies the latest live pose. ok is false when no pose is
// available for this tick.
type PoseSource interface {
	Pose() (p Pose, ok bool)
}

// PoseFunc adapts a function to PoseSource.
type PoseFunc func() (Pose, bool)

// Pose implements PoseSource.
func (f PoseFunc) Pose() (Pose, bool) { return f() }

// Updates turns a pose and its analysis into per-joint store updates.
// Joints below minScore are treated as absent and produce no update.
// Feet take their grounding from the pose.
func Updates(p Pose, a biomech.Analysis, minScore float64) map[string]sequence.JointUpdate {
	out := make(map[string]sequence.JointUpdate)
	for id, kp := range p.Joints {
		if _, ok := p.Joints.Visible(id, minScore); !ok {
			continue
		}
		vec, score := kp.Vector, kp.Score
		u := sequence.JointUpdate{Vector: &vec, Score: &score}
		if o, ok := a.Orientations[id]; ok {
			u.Orientation = &o
		}
		if biomech.IsFoot(id) {
			if g, ok := p.Grounding[notation.Side(id[0])]; ok {
				u.Grounding = &g
			}
		}
		out[id] = u
	}
	return out
}

// record writes the live pose at addr into the open take. A rejected joint
// is logged and skipped; the rest of the pose is still written.
func (c *Clock) record(addr sequence.Address) {
	if c.take == nil || c.poses == nil {
		return
	}
	pose, ok := c.poses.Pose()
	if !ok {
		c.logger.Debug("no pose for beat", "address", addr.String())
		return
	}

	analysis := c.classifier.Classify(biomech.Frame{
		Joints:      pose.Joints,
		Previous:    c.prev,
		FaceVisible: pose.FaceVisible,
	})
	c.prev = pose.Joints

	updates := Updates(pose, analysis, c.minScore)
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := c.take.Write(addr, id, updates[id]); err != nil {
			c.logger.Warn("recorded joint rejected", "address", addr.String(), "joint", id, "error", err)
		}
	}
}
