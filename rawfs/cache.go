// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package rawfs

import (
	"github.com/forensicanalysis/artifactcollector/vfs"
)

// MaxCachedListings bounds the number of directory listings kept per volume.
const MaxCachedListings = 10000

// listingCache keeps directory listings by path and evicts in insertion
// order once full. Access does not refresh an entry.
type listingCache struct {
	limit   int
	entries map[string][]*vfs.Node
	order   []string
	hits    int
	misses  int
}

func newListingCache(limit int) *listingCache {
	return &listingCache{limit: limit, entries: map[string][]*vfs.Node{}}
}

func (c *listingCache) get(key string) ([]*vfs.Node, bool) {
	nodes, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return nodes, ok
}

func (c *listingCache) put(key string, nodes []*vfs.Node) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = nodes
		return
	}
	for len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order[0] = ""
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = nodes
	c.order = append(c.order, key)
}

func (c *listingCache) len() int {
	return len(c.entries)
}

// CacheStats reports listing cache hits and misses.
type CacheStats struct {
	Entries int
	Hits    int
	Misses  int
}
