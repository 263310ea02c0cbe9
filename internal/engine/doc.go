// Package engine runs the external transcoding programs and classifies how
// they fail.
//
// Two engines implement [Engine]:
//   - [ProcessEngine] runs native executables (ffmpeg, gifsicle) with the
//     request work directory as the current directory.
//   - [WasmEngine] runs a WASI build of ffmpeg inside wazero with the work
//     directory mounted as the filesystem root.
//
// Callers go through an [Invoker], which applies the wall-clock timeout and
// the output-buffer cap and returns failures as [*Error]:
//
//	inv := engine.NewInvoker(engine.NewProcessEngine(bins, nil), engine.InvokerConfig{
//		Timeout: 5 * time.Minute,
//	})
//	_, err := inv.Invoke(ctx, engine.Invocation{
//		Program:    engine.ProgramFFmpeg,
//		Args:       []string{"-i", "input.mov", "output.mp4"},
//		WorkDir:    dir,
//		OutputFile: "output.mp4",
//	})
//	if e := engine.AsError(err); e != nil {
//		http.Error(w, e.Message(), e.Kind.HTTPStatus())
//	}
//
// A run that exceeds its deadline is killed and reported as
// KindEngineTimeout without output. A non-zero exit is classified by
// substring matching on the diagnostic output; anything unmatched is
// KindGeneric. A successful run whose declared output file is missing or
// empty is KindEmptyOutput. Nothing is retried.
package engine
