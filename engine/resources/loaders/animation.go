package loaders

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spaghettifunk/reverie/engine/math"
	"github.com/spaghettifunk/reverie/engine/resources"
)

type Keyframe struct {
	Time     float32         `json:"time"`
	Position math.Vec3       `json:"position"`
	Rotation math.Quaternion `json:"rotation"`
	Scale    math.Vec3       `json:"scale"`
}

// Pose is a sampled transform.
type Pose struct {
	Position math.Vec3
	Rotation math.Quaternion
	Scale    math.Vec3
}

// Animation is a single track of keyframes sorted by time.
type Animation struct {
	resources.BaseResource

	Name      string     `json:"name"`
	Duration  float32    `json:"duration"`
	Loop      bool       `json:"loop"`
	Keyframes []Keyframe `json:"keyframes"`
}

func (a *Animation) Type() resources.ResourceType {
	return resources.ResourceTypeAnimation
}

// Sample interpolates the pose at time t. Looping animations wrap t, the
// others clamp it to the first and last keyframe.
func (a *Animation) Sample(t float32) Pose {
	kf := a.Keyframes
	if len(kf) == 0 {
		return Pose{Rotation: math.NewQuatIdentity(), Scale: math.Vec3{X: 1, Y: 1, Z: 1}}
	}
	if a.Loop && a.Duration > 0 {
		for t >= a.Duration {
			t -= a.Duration
		}
		for t < 0 {
			t += a.Duration
		}
	}
	if t <= kf[0].Time {
		return kf[0].pose()
	}
	last := kf[len(kf)-1]
	if t >= last.Time {
		return last.pose()
	}

	next := sort.Search(len(kf), func(i int) bool { return kf[i].Time > t })
	from, to := kf[next-1], kf[next]
	f := (t - from.Time) / (to.Time - from.Time)
	return Pose{
		Position: from.Position.Lerp(to.Position, f),
		Rotation: from.Rotation.Slerp(to.Rotation, f),
		Scale:    from.Scale.Lerp(to.Scale, f),
	}
}

func (k Keyframe) pose() Pose {
	return Pose{Position: k.Position, Rotation: k.Rotation, Scale: k.Scale}
}

// AnimationLoader reads JSON keyframe tracks.
type AnimationLoader struct{}

func (AnimationLoader) Load(req *resources.LoadRequest) (resources.Resource, error) {
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}
	a := &Animation{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("animation %s: %w", req.Path, err)
	}
	sort.SliceStable(a.Keyframes, func(i, j int) bool { return a.Keyframes[i].Time < a.Keyframes[j].Time })
	for i := range a.Keyframes {
		k := &a.Keyframes[i]
		if k.Rotation == (math.Quaternion{}) {
			k.Rotation = math.NewQuatIdentity()
		}
		if k.Scale == (math.Vec3{}) {
			k.Scale = math.Vec3{X: 1, Y: 1, Z: 1}
		}
	}
	if a.Duration == 0 && len(a.Keyframes) > 0 {
		a.Duration = a.Keyframes[len(a.Keyframes)-1].Time
	}
	a.SetCost(int64(len(a.Keyframes)) * 48)
	return a, nil
}
