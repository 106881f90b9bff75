package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntentZeroValue(t *testing.T) {
	var i Intent
	assert.Equal(t, "", i.Component())
	assert.Equal(t, ShareSourceMoodboards, i.ShareSource())
}

func TestIntentConcurrentReplace(t *testing.T) {
	i := NewIntent("MainActivity")

	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			i.SetComponent("com.creek.ui.ShareToFiles")
		}()
		go func() {
			defer wg.Done()
			_ = i.ShareSource()
		}()
	}
	wg.Wait()

	assert.Equal(t, ShareSourceFiles, i.ShareSource())
}

func TestBindKinds(t *testing.T) {
	m := &Method{Params: []Param{
		{Name: "list", Kind: KindStringList, Required: true},
		{Name: "opt", Kind: KindString, Default: "{}"},
	}}

	args, err := m.bind(map[string]any{"list": []string{"a"}})
	assert.NoError(t, err)
	assert.Equal(t, []any{[]string{"a"}, "{}"}, args)

	_, err = m.bind(map[string]any{"list": map[string]any{}})
	assert.ErrorContains(t, err, `argument "list": expected list of strings`)

	assert.Equal(t, "list of strings", KindStringList.String())
	assert.Equal(t, "analyze_layout.analyze_single_image", (&Method{Module: "analyze_layout", Func: "analyze_single_image"}).Target())
	assert.Equal(t, "local", (&Method{Local: func(*Dispatcher) Response { return Response{} }}).Target())
}
