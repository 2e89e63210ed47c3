package pipeline

import "cloudpico-bridge/internal/record"

// Composer builds one JSON message and its topic inside a single fixed
// buffer. The body grows forward from the start; the topic grows backward
// from the end. A message is valid only when a topic was written and the
// two regions never met.
type Composer struct {
	buf      []byte
	pos      int
	topicAt  int
	elemPos  int
	failed   bool
	failures int
	retain   bool
	finished bool

	// quotedOpen is set while the last value written is a quoted value that
	// a continuation record may extend.
	quotedOpen bool
}

// NewComposer returns a composer whose body and topic share size bytes.
func NewComposer(size int) *Composer {
	return &Composer{buf: make([]byte, size)}
}

// Start discards the current message and opens a new body.
func (j *Composer) Start() {
	j.pos = 0
	j.topicAt = len(j.buf)
	j.elemPos = 0
	j.failed = false
	j.failures = 0
	j.retain = false
	j.finished = false
	j.quotedOpen = false
	if j.topicAt > 0 {
		j.buf[0] = '{'
		j.pos = 1
	}
}

// Finish closes the body.
func (j *Composer) Finish() {
	if j.pos == 0 || j.pos >= j.topicAt {
		j.finished = false
		return
	}
	j.buf[j.pos] = '}'
	j.pos++
	j.finished = true
}

// Valid reports whether the finished message has a topic and a complete body.
func (j *Composer) Valid() bool {
	return j.finished && j.topicAt < len(j.buf) && j.pos <= j.topicAt
}

// Body returns the JSON body. The slice is reused by the next Start.
func (j *Composer) Body() []byte { return j.buf[:j.pos] }

// Topic returns the topic written for the current message.
func (j *Composer) Topic() string { return string(j.buf[j.topicAt:]) }

// Retain reports whether the message should be published retained.
func (j *Composer) Retain() bool { return j.retain }

// Failures returns the number of elements dropped since Start.
func (j *Composer) Failures() int { return j.failures }

// Add renders rec into the current message.
func (j *Composer) Add(rec *record.Record, c *Cache) {
	ti := Lookup(rec.Type())
	if ti.Support&SupportCache != 0 {
		c.Apply(rec)
	}

	switch {
	case ti.Core == CoreNone:
		return
	case rec.Field == record.FieldTopic:
		j.addTopic(rec, c, ti)
		return
	case rec.Field == record.FieldNone:
		return
	}

	if !c.HeadOpen() {
		j.startElement(rec.Field)
	}
	j.addValue(rec, c, ti)

	if ti.Support&SupportDoubleField != 0 && rec.TypeInfo&record.DoubleField != 0 {
		second := rec.Secondary()
		second.TypeInfo &^= record.DoubleField
		if !c.HeadOpen() {
			j.startElement(second.Field)
		}
		j.addValue(&second, c, ti)
	}
}

func (j *Composer) addTopic(rec *record.Record, c *Cache, ti TypeInfo) {
	var m Writer
	if err := ti.Format(&m, rec, c); err != nil || m.Len() == 0 {
		j.failures++
		return
	}

	end := len(j.buf)
	start := end - m.Len()
	if start <= j.pos {
		j.failures++
		return
	}
	w := newWriter(j.buf[start:end])
	if err := ti.Format(&w, rec, c); err != nil || w.Overflow() || w.Len() != m.Len() {
		j.failures++
		return
	}
	j.topicAt = start

	switch rec.TypeInfo & record.TopicKindMask {
	case record.TopicConfig, record.TopicRetained:
		j.retain = true
	}
}

// startElement writes the ,"key": prefix of a new element. A continuation
// belongs to the element before it and keeps that element's state.
func (j *Composer) startElement(f record.Field) {
	if f == record.FieldCont {
		return
	}
	j.elemPos = j.pos
	j.failed = false
	j.quotedOpen = false

	w := newWriter(j.buf[j.pos:j.limit()])
	if p := j.prev(j.pos); p != '{' && p != '[' {
		_ = w.WriteByte(',')
	}
	_ = w.WriteByte('"')
	_, _ = w.WriteString(f.String())
	_, _ = w.WriteString(`":`)
	if w.Overflow() {
		j.fail()
		return
	}
	j.pos += w.Len()
}

func (j *Composer) addValue(rec *record.Record, c *Cache, ti TypeInfo) {
	closing := ti.Core.complex() && rec.CloseComplex()
	if j.failed {
		if closing {
			c.closeHead()
		}
		return
	}

	cont := rec.Field == record.FieldCont
	quoted := ti.Core.quoted()
	start := j.pos
	// A continuation of a quoted value overwrites the closing quote.
	resume := cont && quoted && j.quotedOpen
	if cont && quoted && !resume {
		j.failures++
		return
	}
	if resume {
		start--
	}

	w := newWriter(j.buf[start:j.limit()])
	opens := false
	comma := false
	if ti.Core.complex() {
		if !c.HeadOpen() {
			_ = w.WriteByte(ti.Core.open())
			opens = true
		} else if p := j.prev(start); p != '{' && p != '[' {
			_ = w.WriteByte(',')
			comma = true
		}
	}
	if quoted && !cont {
		_ = w.WriteByte('"')
	}

	mark := w.Len()
	if err := ti.Format(&w, rec, c); err != nil {
		j.failComplex(rec, c, ti, opens)
		return
	}
	if comma && w.Len() == mark {
		w.Truncate(0)
	}
	if quoted && (!cont || resume) {
		_ = w.WriteByte('"')
	}
	if closing {
		_ = w.WriteByte(ti.Core.close())
	}
	if w.Overflow() {
		j.failComplex(rec, c, ti, opens)
		return
	}

	j.pos = start + w.Len()
	j.quotedOpen = quoted
	switch {
	case closing:
		c.closeHead()
	case opens:
		c.openHead(rec)
	}
}

// failComplex drops the current element. When the element is an array or
// object that has not seen its closing record yet, the head is kept open so
// that the remaining members are swallowed instead of starting a new key.
func (j *Composer) failComplex(rec *record.Record, c *Cache, ti TypeInfo, opens bool) {
	j.fail()
	if !ti.Core.complex() {
		return
	}
	switch {
	case rec.CloseComplex():
		c.closeHead()
	case opens:
		c.openHead(rec)
	}
}

func (j *Composer) fail() {
	j.pos = j.elemPos
	j.failures++
	j.failed = true
	j.quotedOpen = false
}

// limit is the last body offset usable by an element, keeping one byte for
// the closing brace.
func (j *Composer) limit() int {
	return max(j.topicAt-1, j.pos)
}

func (j *Composer) prev(at int) byte {
	if at <= 0 {
		return 0
	}
	return j.buf[at-1]
}
