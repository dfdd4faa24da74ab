package config

type WorkerKeyStruct struct {
	AnalyzeAttemptsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	AnalyzeAttemptsQueue: "analyze_attempts_queue",
}
