package parser

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func mustParse(t *testing.T, raw string, fallback int) *Result {
	t.Helper()
	res, err := Parse(raw, fallback)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return res
}

func ofKind(res *Result, k Kind) []Descriptor {
	var out []Descriptor
	for _, d := range res.Descriptors {
		if d.Kind == k {
			out = append(out, d)
		}
	}
	return out
}

func TestTableBlanksStaySeparate(t *testing.T) {
	raw := `<table>
<tr><td><strong>5</strong> Name: <input type="text"></td></tr>
<tr><td><strong>6</strong> Phone: <input type="text"></td></tr>
</table>`

	res := mustParse(t, raw, 1)
	blanks := ofKind(res, KindFillBlank)
	if len(blanks) != 2 {
		t.Fatalf("expected 2 blanks, got %d", len(blanks))
	}
	for i, want := range []int{5, 6} {
		b := blanks[i]
		if b.Number != want {
			t.Errorf("blank %d: number = %d, want %d", i, b.Number, want)
		}
		if !b.InTable || b.TableNumber != 5 {
			t.Errorf("blank %d: in_table=%v table_number=%d", i, b.InTable, b.TableNumber)
		}
		if b.ResolvedBy != ByMarker {
			t.Errorf("blank %d: resolved by %s", i, b.ResolvedBy)
		}
	}
}

func TestTableBlankMarkerInNeighbourCell(t *testing.T) {
	raw := `<table><tr><td><strong>8</strong></td><td><input></td></tr></table>`
	blanks := ofKind(mustParse(t, raw, 1), KindFillBlank)
	if len(blanks) != 1 {
		t.Fatalf("expected 1 blank, got %d", len(blanks))
	}
	if blanks[0].Number != 8 || blanks[0].ResolvedBy != ByParent {
		t.Errorf("got number %d by %s", blanks[0].Number, blanks[0].ResolvedBy)
	}
}

func TestBlankResolutionChain(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		fallback int
		want     int
		by       Strategy
	}{
		{
			name: "marker",
			raw:  `<p><strong>1</strong> Name <input type="text"></p>`,
			want: 1, by: ByMarker,
		},
		{
			name: "marker with trailing dot",
			raw:  `<p><b>12.</b> <input></p>`,
			want: 12, by: ByMarker,
		},
		{
			name: "sibling",
			raw:  `<p><span><strong>2</strong> colour</span> <em>x</em> <input></p>`,
			want: 2, by: BySibling,
		},
		{
			name: "parent",
			raw:  `<div><p><strong>3</strong> Address</p><p><input></p></div>`,
			want: 3, by: ByParent,
		},
		{
			name: "attribute",
			raw:  `<p>Postcode <input data-question="4"></p>`,
			want: 4, by: ByAttribute,
		},
		{
			name:     "container",
			raw:      `<p>Postcode <input></p>`,
			fallback: 9,
			want:     9, by: ByContainer,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			blanks := ofKind(mustParse(t, tc.raw, tc.fallback), KindFillBlank)
			if len(blanks) != 1 {
				t.Fatalf("expected 1 blank, got %d", len(blanks))
			}
			if blanks[0].Number != tc.want || blanks[0].ResolvedBy != tc.by {
				t.Errorf("got %d by %s, want %d by %s", blanks[0].Number, blanks[0].ResolvedBy, tc.want, tc.by)
			}
		})
	}
}

func TestBlankDoesNotStealEarlierInputsMarker(t *testing.T) {
	raw := `<p><strong>7</strong> from <input> to <input></p>`
	blanks := ofKind(mustParse(t, raw, 20), KindFillBlank)
	if len(blanks) != 2 {
		t.Fatalf("expected 2 blanks, got %d", len(blanks))
	}
	if blanks[0].Number != 7 {
		t.Errorf("first blank = %d, want 7", blanks[0].Number)
	}
	if blanks[1].Number != 20 || blanks[1].ResolvedBy != ByContainer {
		t.Errorf("second blank = %d by %s, want container fallback 20", blanks[1].Number, blanks[1].ResolvedBy)
	}
}

func TestHeaderSeparators(t *testing.T) {
	for _, raw := range []string{
		`<p>Questions 11-15</p>`,
		`<p>Questions 11 – 15</p>`,
		`<p>Questions 11&ndash;15</p>`,
		`<p>Question 11&#8211;15</p>`,
	} {
		res := mustParse(t, raw, 0)
		if len(res.Headers) != 1 {
			t.Errorf("%q: expected 1 header, got %d", raw, len(res.Headers))
			continue
		}
		if h := res.Headers[0]; h.Start != 11 || h.End != 15 {
			t.Errorf("%q: range %d-%d", raw, h.Start, h.End)
		}
	}
}

func TestHeaderRejectsInvertedRange(t *testing.T) {
	res := mustParse(t, `<p>Questions 15-11</p>`, 0)
	if len(res.Headers) != 0 {
		t.Errorf("expected no header, got %+v", res.Headers)
	}
}

func TestLongInstructionKeepsWholeRunes(t *testing.T) {
	for _, lead := range []string{"", "a"} {
		raw := `<p>Questions 1-5</p><p>` + lead + strings.Repeat("é", 400) + `</p>`
		res := mustParse(t, raw, 0)
		if len(res.Headers) != 1 {
			t.Fatalf("expected 1 header, got %d", len(res.Headers))
		}
		ins := res.Headers[0].Instruction
		if !utf8.ValidString(ins) {
			t.Errorf("lead %q: instruction is not valid UTF-8", lead)
		}
		if len(ins) > maxInstruction || len(ins) < maxInstruction-utf8.UTFMax {
			t.Errorf("lead %q: instruction length %d", lead, len(ins))
		}
	}
}

const checkboxTwo = `<p><strong>Questions 21-22</strong></p>
<p>Choose TWO letters, A-E.</p>
<p><input type="checkbox" value="A"> A. the bus</p>
<p><input type="checkbox" value="B"> B. the train</p>
<p><input type="checkbox" value="C"> C. a taxi</p>
<p><input type="checkbox" value="D"> D. a bike</p>
<p><input type="checkbox" value="E"> E. on foot</p>`

func TestCheckboxGroup(t *testing.T) {
	groups := ofKind(mustParse(t, checkboxTwo, 21), KindCheckboxGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Start != 21 || g.End != 22 {
		t.Errorf("range %d-%d", g.Start, g.End)
	}
	if g.SelectCount != 2 {
		t.Errorf("select count = %d", g.SelectCount)
	}
	if len(g.Options) != 5 || g.Options[2].Value != "C" || g.Options[2].Label != "C. a taxi" {
		t.Errorf("options = %+v", g.Options)
	}
	if !strings.Contains(g.Text, "Choose TWO") {
		t.Errorf("instruction = %q", g.Text)
	}
}

func TestCheckboxGroupChooseThree(t *testing.T) {
	raw := `<p>Questions 24-26</p><p>Choose THREE letters.</p>` +
		`<p><input type="checkbox"> A one</p><p><input type="checkbox"> B two</p>` +
		`<p><input type="checkbox"> C three</p><p><input type="checkbox"> D four</p>`
	groups := ofKind(mustParse(t, raw, 24), KindCheckboxGroup)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].SelectCount != 3 {
		t.Errorf("select count = %d", groups[0].SelectCount)
	}
	if groups[0].Options[3].Value != "D" {
		t.Errorf("value derived from label = %q", groups[0].Options[3].Value)
	}
}

func TestCheckboxGroupRequiresNearbyCheckbox(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<p>Questions 21-22</p>`)
	for i := 0; i < 16; i++ {
		b.WriteString(`<p>filler</p>`)
	}
	b.WriteString(`<p><input type="checkbox" value="A"> A</p>`)

	if groups := ofKind(mustParse(t, b.String(), 21), KindCheckboxGroup); len(groups) != 0 {
		t.Errorf("expected no group past the lookahead window, got %d", len(groups))
	}
}

func TestCheckboxDisabledIsNotActive(t *testing.T) {
	raw := `<p>Questions 21-22</p><p><input type="checkbox" disabled> A</p>`
	if groups := ofKind(mustParse(t, raw, 21), KindCheckboxGroup); len(groups) != 0 {
		t.Errorf("expected no group, got %d", len(groups))
	}
}

func TestRepeatedHeaderIsSuppressed(t *testing.T) {
	raw := checkboxTwo + checkboxTwo
	groups := ofKind(mustParse(t, raw, 21), KindCheckboxGroup)
	if len(groups) != 1 {
		t.Fatalf("expected duplicate group to be suppressed, got %d", len(groups))
	}
	if len(groups[0].Anchors) != 10 {
		t.Errorf("expected anchors from both copies, got %d", len(groups[0].Anchors))
	}
}

func TestMultipleChoice(t *testing.T) {
	raw := `<p><strong>Questions 11-12</strong></p>
<p><strong>11</strong> Where is the hotel?</p>
<p><input type="radio" name="q11" value="A"> A. North</p>
<p><input type="radio" name="q11" value="B"> B. South</p>
<p><strong>12</strong> When does it open?</p>
<p><input type="radio" value="A"> A. Monday</p>
<p><input type="radio"> B. Tuesday</p>`

	mcs := ofKind(mustParse(t, raw, 11), KindMultipleChoice)
	if len(mcs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(mcs))
	}
	if mcs[0].Number != 11 || mcs[0].Text != "Where is the hotel?" {
		t.Errorf("first = %d %q", mcs[0].Number, mcs[0].Text)
	}
	if len(mcs[0].Options) != 2 || mcs[0].Options[1].Value != "B" {
		t.Errorf("first options = %+v", mcs[0].Options)
	}
	if mcs[1].Number != 12 || mcs[1].Options[1].Value != "B" {
		t.Errorf("second = %d %+v", mcs[1].Number, mcs[1].Options)
	}
}

const tableRadio = `<table>
<tr><th>Statement</th><th>A</th><th>B</th></tr>
<tr><td><strong>15</strong> Cost</td><td><input type="radio"></td><td><input type="radio"></td></tr>
<tr><td><strong>16</strong> Size</td><td><input type="radio"></td><td><input type="radio"></td></tr>
<tr><td><strong>17</strong> Location</td><td><input type="radio"></td><td><input type="radio"></td></tr>
</table>`

func TestTableRadioFromHeader(t *testing.T) {
	tables := ofKind(mustParse(t, `<p>Questions 15-18</p>`+tableRadio, 15), KindTableRadio)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	tr := tables[0]
	if tr.Start != 15 || tr.End != 18 {
		t.Errorf("range %d-%d, want header range 15-18", tr.Start, tr.End)
	}
	if len(tr.Rows) != 3 {
		t.Fatalf("rows = %d", len(tr.Rows))
	}
	if r := tr.Rows[1]; r.Number != 16 || r.Text != "Size" || r.Options[0].Value != "A" || r.Options[1].Label != "B" {
		t.Errorf("row = %+v", r)
	}
	if len(tr.Anchors) != 6 {
		t.Errorf("anchors = %d", len(tr.Anchors))
	}
}

func TestTableRadioRangeFromCells(t *testing.T) {
	tables := ofKind(mustParse(t, tableRadio, 1), KindTableRadio)
	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	if tables[0].Start != 15 || tables[0].End != 17 {
		t.Errorf("range %d-%d, want 15-17", tables[0].Start, tables[0].End)
	}
}

func TestDragDrop(t *testing.T) {
	raw := `<p>Questions 27-29</p>
<div class="drag-drop">
<p>The museum is near the <span class="drop-zone"></span>.</p>
<p>The cafe opens at <span class="drop-zone"></span>.</p>
<p><strong>29</strong> Parking is <span class="drop-zone"></span></p>
</div>
<div class="drag-options">
<span class="drag-option">A station</span>
<span class="drag-option">B river</span>
<span class="drag-option" data-value="C">C noon</span>
</div>`

	res := mustParse(t, raw, 27)
	dds := ofKind(res, KindDragDrop)
	if len(dds) != 1 {
		t.Fatalf("expected 1 drag-drop, got %d", len(dds))
	}
	d := dds[0]
	if d.Start != 27 || d.End != 29 {
		t.Errorf("range %d-%d", d.Start, d.End)
	}
	var got []int
	for _, z := range d.Zones {
		got = append(got, z.Number)
	}
	if len(got) != 3 || got[0] != 27 || got[1] != 28 || got[2] != 29 {
		t.Errorf("zone numbers = %v", got)
	}
	if len(d.Options) != 3 || d.Options[0].Value != "A" || d.Options[2].Value != "C" {
		t.Errorf("options = %+v", d.Options)
	}
	if d.PoolPos <= 0 {
		t.Errorf("pool position not recorded")
	}
	if !strings.Contains(d.Content, "drop-zone") {
		t.Errorf("original content not preserved: %q", d.Content)
	}
	if res.DragDropFor(28) == nil || res.DragDropWithOption("B") == nil {
		t.Errorf("lookup helpers failed")
	}
}

func TestPlainContentHasNoDescriptors(t *testing.T) {
	res := mustParse(t, `<p>Listen to the conversation and answer.</p>`, 1)
	if len(res.Descriptors) != 0 {
		t.Errorf("expected no descriptors, got %d", len(res.Descriptors))
	}
}

func TestPositionsAreStable(t *testing.T) {
	a := mustParse(t, checkboxTwo, 21)
	b := mustParse(t, checkboxTwo, 21)
	if len(a.Descriptors) != len(b.Descriptors) {
		t.Fatal("descriptor counts differ")
	}
	for i := range a.Descriptors {
		if a.Descriptors[i].Pos != b.Descriptors[i].Pos {
			t.Errorf("descriptor %d moved: %d vs %d", i, a.Descriptors[i].Pos, b.Descriptors[i].Pos)
		}
	}
}
