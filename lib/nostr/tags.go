package nostr

// Tag is a single event tag, e.g. ["p", "<pubkey>", "<relay>"].
type Tag []string

// Key returns the tag name.
func (tag Tag) Key() string {
	if len(tag) == 0 {
		return ""
	}
	return tag[0]
}

// Value returns the first tag value.
func (tag Tag) Value() string {
	if len(tag) < 2 {
		return ""
	}
	return tag[1]
}

// Tags is the ordered tag list of an event.
type Tags []Tag

// Find returns the first tag with the given name, or nil.
func (tags Tags) Find(key string) Tag {
	for _, tag := range tags {
		if tag.Key() == key && len(tag) >= 2 {
			return tag
		}
	}
	return nil
}

// FindAll returns every tag with the given name.
func (tags Tags) FindAll(key string) Tags {
	var out Tags
	for _, tag := range tags {
		if tag.Key() == key && len(tag) >= 2 {
			out = append(out, tag)
		}
	}
	return out
}

// GetFirstValue returns the value of the first tag named key.
func (tags Tags) GetFirstValue(key string) (string, bool) {
	tag := tags.Find(key)
	if tag == nil {
		return "", false
	}
	return tag[1], true
}

// appendJSON writes the tags as a JSON array. A nil list is written as [].
func (tags Tags) appendJSON(dst []byte) []byte {
	dst = append(dst, '[')
	for i, tag := range tags {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = append(dst, '[')
		for j, s := range tag {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = appendEscaped(dst, s)
		}
		dst = append(dst, ']')
	}
	return append(dst, ']')
}
