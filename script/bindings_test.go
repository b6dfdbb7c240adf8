package script

import (
	"testing"
	"time"

	"github.com/jsrun-go/jsrun/engine"
	"github.com/jsrun-go/jsrun/module"
	"github.com/jsrun-go/jsrun/workerrt"
)

func fixedLoader(source string) *module.Loader {
	return module.NewLoader(
		func(file, _ string) (string, error) { return "fixed://" + file, nil },
		func(string) (string, error) { return source, nil },
	)
}

func TestConstructWorkerRejectsWrongArgCount(t *testing.T) {
	rootCtx := engine.NewFakeContext()
	var created []*engine.FakeContext
	factory := func() (engine.Context, error) {
		fc := engine.NewFakeContext()
		created = append(created, fc)
		return fc, nil
	}
	b := NewBindings(factory, fixedLoader("onmessage = function() {}"))
	root := workerrt.NewRoot(rootCtx, "root", b.Dispatch())
	if err := b.Install(rootCtx, root); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := b.constructWorker(rootCtx, root, nil, nil); err == nil {
		t.Errorf("expected an error constructing Worker with zero arguments")
	}
	if _, err := b.constructWorker(rootCtx, root, nil, []engine.Value{42}); err == nil {
		t.Errorf("expected an error constructing Worker with a non-string argument")
	}
	if len(created) != 0 {
		t.Errorf("expected no child context to be created for invalid constructor calls")
	}
}

func TestSpawnedWorkerInstanceMethods(t *testing.T) {
	rootCtx := engine.NewFakeContext()
	var childCtx *engine.FakeContext
	factory := func() (engine.Context, error) {
		childCtx = engine.NewFakeContext()
		return childCtx, nil
	}
	b := NewBindings(factory, fixedLoader("onmessage = function() {}"))
	root := workerrt.NewRoot(rootCtx, "root", b.Dispatch())
	if err := b.Install(rootCtx, root); err != nil {
		t.Fatalf("Install: %v", err)
	}
	go root.Run()

	wrapper, err := b.constructWorker(rootCtx, root, nil, []engine.Value{"worker.js"})
	if err != nil {
		t.Fatalf("constructWorker: %v", err)
	}
	if childCtx == nil {
		t.Fatalf("expected a child context to be created")
	}

	received := make(chan engine.Value, 2)
	if err := childCtx.DefineFunction(childCtx.Global(), "onmessage",
		func(_ engine.Context, _ engine.Value, args []engine.Value) (engine.Value, error) {
			if len(args) > 0 {
				received <- args[0]
			}
			return nil, nil
		}, true); err != nil {
		t.Fatalf("installing child onmessage: %v", err)
	}

	postMessage, err := rootCtx.GetProperty(wrapper, "postMessage")
	if err != nil || postMessage == nil {
		t.Fatalf("postMessage property missing: %v", err)
	}
	if _, err := rootCtx.Call(postMessage, wrapper, "hello"); err != nil {
		t.Fatalf("calling instance postMessage: %v", err)
	}

	select {
	case v := <-received:
		if v != "hello" {
			t.Errorf("delivered value = %v, want \"hello\"", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("child never received the posted message")
	}

	closing, err := rootCtx.GetProperty(wrapper, "closing")
	if err != nil {
		t.Fatalf("reading closing: %v", err)
	}
	if closing != false {
		t.Errorf("closing = %v before terminate, want false", closing)
	}

	terminate, err := rootCtx.GetProperty(wrapper, "terminate")
	if err != nil || terminate == nil {
		t.Fatalf("terminate property missing: %v", err)
	}
	if _, err := rootCtx.Call(terminate, wrapper); err != nil {
		t.Fatalf("calling terminate: %v", err)
	}

	closing, err = rootCtx.GetProperty(wrapper, "closing")
	if err != nil {
		t.Fatalf("reading closing after terminate: %v", err)
	}
	if closing != true {
		t.Errorf("closing = %v after terminate, want true", closing)
	}

	root.Terminate()
	<-root.Done()
}
