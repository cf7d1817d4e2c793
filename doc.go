// Package omnitarget is an embeddable logging engine. Applications send text,
// formatted text and hex dumps to a named target; a target owns one file at a
// time, optionally echoes to the console, rotates by number or by date, and
// runs processors such as compression and pruning on every file it closes.
//
// Most programs use a target directly:
//
//	cfg := target.DefaultConfig()
//	cfg.App = "billing"
//	cfg.BasePath = "/var/log/billing"
//	cfg.BasePathMode = target.Absolute
//	cfg.Rotation = rotation.Policy{Scheme: rotation.SchemeDateTime, Granularity: rotation.GranularityDay}
//	cfg.Processors = []processors.Spec{{Kind: "compress", Algorithm: "zstd", RunsOnStartup: true}}
//
//	t, err := target.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	t.LogText(types.SeverityPass, "ready")
//	t.LogTextf(types.SeverityWarning, "retrying %s in %v", host, delay)
//
//	t.Shutdown(ctx, true)
//	t.Dispose()
//
// This package holds the process-wide default target for programs that want
// one logger reachable from everywhere:
//
//	if err := omnitarget.Init(cfg); err != nil {
//		log.Fatal(err)
//	}
//	omnitarget.Text(types.SeverityPass, "ready")
//	...
//	omnitarget.Shutdown(ctx, true)
//	omnitarget.Dispose()
//
// Teardown is always two steps. Shutdown stops admission and either drains or
// discards what is queued; Dispose releases the target and is rejected until
// Shutdown has finished.
//
// Configuration can also be read from YAML or JSON with target.LoadConfig and
// followed at runtime with target.WatchConfig.
package omnitarget
