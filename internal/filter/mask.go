package filter

// mask marks membership of input indexes in a record set.
type mask []bool

func full(n int) mask {
	m := make(mask, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func (m mask) clone() mask {
	out := make(mask, len(m))
	copy(out, m)
	return out
}

func (m mask) intersect(o mask) {
	for i := range m {
		m[i] = m[i] && o[i]
	}
}

func (m mask) union(o mask) {
	for i := range m {
		m[i] = m[i] || o[i]
	}
}

func (m mask) subtract(o mask) {
	for i := range m {
		m[i] = m[i] && !o[i]
	}
}

func (m mask) count() int {
	n := 0
	for _, in := range m {
		if in {
			n++
		}
	}
	return n
}
