package resources

import (
	"strings"

	"github.com/spaghettifunk/reverie/engine/core"
)

type ResourceType int

/** @brief Pre-defined resource types. The order is also the load order used when restoring a cache from JSON. */
const (
	ResourceTypeInvalid ResourceType = -1
	/** @brief Decoded image, not uploaded anywhere. */
	ResourceTypeImage ResourceType = iota - 1
	/** @brief Two dimensional texture. */
	ResourceTypeTexture
	/** @brief Material, usually referencing texture children. */
	ResourceTypeMaterial
	/** @brief Vertex data for a single mesh. */
	ResourceTypeMesh
	/** @brief Six-faced cube map texture. */
	ResourceTypeCubeTexture
	/** @brief Keyframe animation. */
	ResourceTypeAnimation
	/** @brief Model (collection of mesh and material children). */
	ResourceTypeModel
	/** @brief Shader program (vertex + fragment sources). Loads on the main thread. */
	ResourceTypeShaderProgram
	/** @brief Script source. Loads on the main thread. */
	ResourceTypeScript
	/** @brief Skeleton used by animations. */
	ResourceTypeSkeleton
	/** @brief Audio clip. */
	ResourceTypeAudio
	/** @brief Bitmap font. */
	ResourceTypeBitmapFont
	/** @brief Raw binary blob. */
	ResourceTypeBinary
	/** @brief Custom resource type. Used by loaders outside the core engine. */
	ResourceTypeCustom
)

var resourceDirNames = [...]string{
	"images",
	"textures",
	"materials",
	"meshes",
	"cube_textures",
	"animations",
	"models",
	"shaders",
	"scripts",
	"skeletons",
	"audio",
	"fonts",
	"binary",
	"custom",
}

var resourceTypeNames = [...]string{
	"image",
	"texture",
	"material",
	"mesh",
	"cube_texture",
	"animation",
	"model",
	"shader_program",
	"script",
	"skeleton",
	"audio",
	"bitmap_font",
	"binary",
	"custom",
}

func (t ResourceType) IsValid() bool {
	return t >= ResourceTypeImage && int(t) < len(resourceDirNames)
}

// DirName is the sub directory searched for relative paths of this type.
func (t ResourceType) DirName() string {
	if !t.IsValid() {
		return ""
	}
	return resourceDirNames[t]
}

func (t ResourceType) String() string {
	if !t.IsValid() {
		return "invalid"
	}
	return resourceTypeNames[t]
}

// ParseResourceType is the inverse of ResourceType.String.
func ParseResourceType(s string) ResourceType {
	for i, n := range resourceTypeNames {
		if strings.EqualFold(n, s) {
			return ResourceType(i)
		}
	}
	return ResourceTypeInvalid
}

// BehaviorFlag configures how the cache treats a handle. Behavior flags
// persist across loads and are saved with the handle.
type BehaviorFlag uint32

const (
	// The handle may be evicted and removed.
	BehaviorRemovable BehaviorFlag = 1 << iota
	// The handle belongs to a parent and is never evicted on its own.
	BehaviorChild
	// The handle owns child handles.
	BehaviorParent
	// The resource was built in code rather than read from a file.
	BehaviorRuntimeGenerated
	// Built-in resource: never evicted, removed or saved.
	BehaviorCore
	// Skipped when the cache is saved.
	BehaviorUnsaved
	// The resource is rebuilt from cached JSON.
	BehaviorUsesJson
	// No added/deleted events are fired for the handle.
	BehaviorHidden
)

// StatusFlag tracks the transient load state of a handle.
type StatusFlag uint32

const (
	StatusConstructed StatusFlag = 1 << iota
	StatusIsLoading
)

type DeleteFlag uint32

const (
	// Remove even if the handle is core or not removable.
	DeleteForce DeleteFlag = 1 << iota
	// Drop the handle itself, not only its resource body.
	DeleteHandle
)

// PostConstructionData is handed from a loader to the main thread together
// with the queued handle.
type PostConstructionData map[string]any

// Resource is the payload owned by a ResourceHandle. Implementations embed
// BaseResource.
type Resource interface {
	Type() ResourceType
	// Cost approximates the memory held by the resource.
	Cost() int64
	Handle() *ResourceHandle
	// OnRemoval runs right before the handle drops the resource.
	OnRemoval()
	// PostConstruction runs on the main thread once the resource is attached.
	PostConstruction(data PostConstructionData)

	setHandle(h *ResourceHandle)
}

// JSONResource is implemented by resources that can describe themselves as
// JSON, which is cached on the handle for handles that use JSON.
type JSONResource interface {
	MarshalResourceJSON() ([]byte, error)
}

// BaseResource carries the owning handle and the cost of a resource.
type BaseResource struct {
	handle *ResourceHandle
	cost   int64
}

func (b *BaseResource) Handle() *ResourceHandle {
	return b.handle
}

func (b *BaseResource) setHandle(h *ResourceHandle) {
	b.handle = h
}

func (b *BaseResource) Cost() int64 {
	return b.cost
}

// SetCost should be called by the loader before the resource is attached.
func (b *BaseResource) SetCost(cost int64) {
	b.cost = cost
}

func (b *BaseResource) OnRemoval() {}

func (b *BaseResource) PostConstruction(data PostConstructionData) {}

// ResourceEvent is the data attached to resource events.
type ResourceEvent struct {
	Uuid core.Uuid
	Name string
	Type ResourceType
}
