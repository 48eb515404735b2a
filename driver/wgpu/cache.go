package wgpu

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache sizes. Evicted objects are destroyed once the GPU is done with them.
const (
	defaultViewCacheSize  = 512
	defaultGroupCacheSize = 256
)

// viewKey identifies a texture view. whole views cover every mip level.
type viewKey struct {
	tex   uint64
	mip   uint32
	layer uint32
	dim   gputypes.TextureViewDimension
	whole bool
}

// cachedGroup is a bind group with the ids of the objects it references.
type cachedGroup struct {
	raw hal.BindGroup
	ids []uint64
}

// caches holds texture views and resource bind groups.
type caches struct {
	d      *Device
	views  *lru.Cache[viewKey, hal.TextureView]
	groups *lru.Cache[string, cachedGroup]
}

func newCaches(d *Device, views, groups int) (*caches, error) {
	c := &caches{d: d}
	var err error
	c.views, err = lru.NewWithEvict(views, func(_ viewKey, v hal.TextureView) {
		d.deferDestroy(func() { d.dev.DestroyTextureView(v) })
	})
	if err != nil {
		return nil, err
	}
	c.groups, err = lru.NewWithEvict(groups, func(_ string, g cachedGroup) {
		d.deferDestroy(func() { d.dev.DestroyBindGroup(g.raw) })
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// view returns a cached view of t. 2D and 3D views address one layer or the
// whole depth; array and cube views cover every layer.
func (c *caches) view(t *Texture, mip, layer uint32, dim gputypes.TextureViewDimension, whole bool) (hal.TextureView, error) {
	if dim != gputypes.TextureViewDimension2D {
		layer = 0
	}
	key := viewKey{tex: t.id, mip: mip, layer: layer, dim: dim, whole: whole}
	if v, ok := c.views.Get(key); ok {
		return v, nil
	}

	desc := &hal.TextureViewDescriptor{
		Label:        t.label,
		Format:       t.desc.Format,
		Dimension:    dim,
		Aspect:       gputypes.TextureAspectAll,
		BaseMipLevel: mip,
	}
	if !whole {
		desc.MipLevelCount = 1
	} else if t.desc.Format.IsDepthStencil() {
		desc.Aspect = gputypes.TextureAspectDepthOnly
	}
	if dim == gputypes.TextureViewDimension2D {
		desc.BaseArrayLayer = layer
		desc.ArrayLayerCount = 1
	}
	v, err := c.d.dev.CreateTextureView(t.raw, desc)
	if err != nil {
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	c.views.Add(key, v)
	return v, nil
}

// group returns a cached bind group for key, creating it with desc on a
// miss. ids lists every object the group references.
func (c *caches) group(key string, ids []uint64, desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	if g, ok := c.groups.Get(key); ok {
		return g.raw, nil
	}
	raw, err := c.d.dev.CreateBindGroup(desc)
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	c.groups.Add(key, cachedGroup{raw: raw, ids: ids})
	return raw, nil
}

// dropTexture evicts the groups referencing texture id, then its views.
func (c *caches) dropTexture(id uint64) {
	c.dropGroups(id)
	for _, k := range c.views.Keys() {
		if k.tex == id {
			c.views.Remove(k)
		}
	}
}

// dropGroups evicts every bind group referencing object id.
func (c *caches) dropGroups(id uint64) {
	for _, k := range c.groups.Keys() {
		if g, ok := c.groups.Peek(k); ok && slices.Contains(g.ids, id) {
			c.groups.Remove(k)
		}
	}
}

// purge evicts everything.
func (c *caches) purge() {
	c.groups.Purge()
	c.views.Purge()
}

// groupKey builds a bind group cache key from a layout id and the ids of
// the bound objects.
func groupKey(layout uint64, group int, parts []uint64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(layout, 36))
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(group))
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(p, 36))
	}
	return b.String()
}
