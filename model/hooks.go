package model

import "reflect"

// Lifecycle hooks an entity may implement on its pointer receiver.
type PostLoader interface{ PostLoad() error }
type BeforeSerializer interface{ BeforeSerialize() error }
type AfterDeserializer interface{ AfterDeserialize() error }

var (
	postLoaderType        = reflect.TypeOf((*PostLoader)(nil)).Elem()
	beforeSerializerType  = reflect.TypeOf((*BeforeSerializer)(nil)).Elem()
	afterDeserializerType = reflect.TypeOf((*AfterDeserializer)(nil)).Elem()
)

// HookNames lists the methods reserved for lifecycle hooks.
var HookNames = []string{"PostLoad", "BeforeSerialize", "AfterDeserialize"}

// RunPostLoad invokes the PostLoad hook of entity, if any.
func RunPostLoad(entity any) error {
	if h, ok := entity.(PostLoader); ok {
		return h.PostLoad()
	}
	return nil
}
