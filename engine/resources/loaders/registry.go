// Package loaders holds the built-in resource payloads and the loaders that
// build them from files.
package loaders

import (
	"github.com/spaghettifunk/reverie/engine/resources"
)

// RegisterDefaults registers a loader for every built-in resource type.
func RegisterDefaults(cache *resources.ResourceCache) {
	worker := resources.LoaderOptions{}
	cache.RegisterLoader(resources.ResourceTypeImage, &TextureLoader{Type: resources.ResourceTypeImage}, worker)
	cache.RegisterLoader(resources.ResourceTypeTexture, &TextureLoader{Type: resources.ResourceTypeTexture}, worker)
	cache.RegisterLoader(resources.ResourceTypeCubeTexture, CubeTextureLoader{}, worker)
	cache.RegisterLoader(resources.ResourceTypeMaterial, MaterialLoader{}, worker)
	cache.RegisterLoader(resources.ResourceTypeMesh, MeshLoader{}, worker)
	cache.RegisterLoader(resources.ResourceTypeModel, ModelLoader{}, worker)
	cache.RegisterLoader(resources.ResourceTypeAnimation, AnimationLoader{}, worker)
	cache.RegisterLoader(resources.ResourceTypeAudio, &BinaryLoader{Type: resources.ResourceTypeAudio}, worker)
	cache.RegisterLoader(resources.ResourceTypeBinary, &BinaryLoader{Type: resources.ResourceTypeBinary}, worker)
	cache.RegisterLoader(resources.ResourceTypeBitmapFont, BitmapFontLoader{}, worker)
	cache.RegisterLoader(resources.ResourceTypeShaderProgram, ShaderLoader{}, resources.LoaderOptions{MainThread: true})
}
