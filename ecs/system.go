package ecs

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
)

// System represents a behavior that operates on entities with specific components.
// User-defined systems implement this interface and may declare exported
// parameter fields (Query, Res, ResMut, Local, EventReader, EventWriter)
// that are resolved when the system is registered, as well as custom state
// fields that persist between frames.
type System interface {
	Execute(frame *UpdateFrame)
}

// Runnable is a system the Scheduler can run. Struct systems are adapted by
// Scheduler.Register; functions are adapted with Func through Func6.
type Runnable interface {
	defaultName() string
	resolve(ctx *paramContext) error
	run(tick uint64, dt float64)
}

var commandsPtrType = reflect.TypeFor[*Commands]()

// structSystem adapts a System whose exported fields are parameters.
type structSystem struct {
	system   System
	commands *Commands
	frame    UpdateFrame
}

// Struct adapts a System for AddSystem.
func Struct(system System) Runnable {
	return &structSystem{system: system, commands: NewCommands()}
}

func (s *structSystem) defaultName() string {
	t := reflect.TypeOf(s.system)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func (s *structSystem) resolve(ctx *paramContext) error {
	if err := s.commands.bind(ctx); err != nil {
		return err
	}

	v := reflect.ValueOf(s.system)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	v = v.Elem()
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Type() == commandsPtrType {
			field.Set(reflect.ValueOf(s.commands))
			continue
		}

		var p Param
		switch {
		case field.Kind() == reflect.Ptr && field.Type().Implements(paramType):
			if field.IsNil() {
				field.Set(reflect.New(field.Type().Elem()))
			}
			p = field.Interface().(Param)
		case field.Kind() == reflect.Struct && reflect.PointerTo(field.Type()).Implements(paramType):
			p = field.Addr().Interface().(Param)
		default:
			continue
		}

		if err := p.bind(ctx); err != nil {
			return eris.Wrapf(err, "field %s", t.Field(i).Name)
		}
	}
	return nil
}

func (s *structSystem) run(tick uint64, dt float64) {
	s.frame.DeltaTime = dt
	s.frame.Tick = tick
	s.frame.Commands = s.commands
	s.system.Execute(&s.frame)
}

// funcSystem adapts a function whose arguments are parameters.
type funcSystem struct {
	name   string
	params []Param
	call   func()
}

func (f *funcSystem) defaultName() string {
	return f.name
}

func (f *funcSystem) resolve(ctx *paramContext) error {
	for i, p := range f.params {
		if err := p.bind(ctx); err != nil {
			return eris.Wrapf(err, "parameter %d", i+1)
		}
	}
	return nil
}

func (f *funcSystem) run(uint64, float64) {
	f.call()
}

// funcName derives a readable name from a function value, such as
// "movement" for main.movement.
func funcName(fn any) string {
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Func adapts a function without parameters.
func Func(fn func()) Runnable {
	return &funcSystem{name: funcName(fn), call: fn}
}

// Func1 adapts a function taking one parameter.
func Func1[P1 any, PP1 paramPtr[P1]](fn func(PP1)) Runnable {
	p1 := PP1(new(P1))
	return &funcSystem{
		name:   funcName(fn),
		params: []Param{p1},
		call:   func() { fn(p1) },
	}
}

// Func2 adapts a function taking two parameters.
func Func2[P1, P2 any, PP1 paramPtr[P1], PP2 paramPtr[P2]](fn func(PP1, PP2)) Runnable {
	p1, p2 := PP1(new(P1)), PP2(new(P2))
	return &funcSystem{
		name:   funcName(fn),
		params: []Param{p1, p2},
		call:   func() { fn(p1, p2) },
	}
}

// Func3 adapts a function taking three parameters.
func Func3[P1, P2, P3 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3]](fn func(PP1, PP2, PP3)) Runnable {
	p1, p2, p3 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3))
	return &funcSystem{
		name:   funcName(fn),
		params: []Param{p1, p2, p3},
		call:   func() { fn(p1, p2, p3) },
	}
}

// Func4 adapts a function taking four parameters.
func Func4[P1, P2, P3, P4 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3], PP4 paramPtr[P4]](fn func(PP1, PP2, PP3, PP4)) Runnable {
	p1, p2, p3, p4 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3)), PP4(new(P4))
	return &funcSystem{
		name:   funcName(fn),
		params: []Param{p1, p2, p3, p4},
		call:   func() { fn(p1, p2, p3, p4) },
	}
}

// Func5 adapts a function taking five parameters.
func Func5[P1, P2, P3, P4, P5 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3], PP4 paramPtr[P4], PP5 paramPtr[P5]](fn func(PP1, PP2, PP3, PP4, PP5)) Runnable {
	p1, p2, p3, p4, p5 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3)), PP4(new(P4)), PP5(new(P5))
	return &funcSystem{
		name:   funcName(fn),
		params: []Param{p1, p2, p3, p4, p5},
		call:   func() { fn(p1, p2, p3, p4, p5) },
	}
}

// Func6 adapts a function taking six parameters.
func Func6[P1, P2, P3, P4, P5, P6 any, PP1 paramPtr[P1], PP2 paramPtr[P2], PP3 paramPtr[P3], PP4 paramPtr[P4], PP5 paramPtr[P5], PP6 paramPtr[P6]](fn func(PP1, PP2, PP3, PP4, PP5, PP6)) Runnable {
	p1, p2, p3, p4, p5, p6 := PP1(new(P1)), PP2(new(P2)), PP3(new(P3)), PP4(new(P4)), PP5(new(P5)), PP6(new(P6))
	return &funcSystem{
		name:   funcName(fn),
		params: []Param{p1, p2, p3, p4, p5, p6},
		call:   func() { fn(p1, p2, p3, p4, p5, p6) },
	}
}
