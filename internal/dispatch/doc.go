// Package dispatch — оркестрация команд управления компьютерами.
//
// Dispatcher принимает запрос (один компьютер, группа, аудитория или
// broadcast), создаёт durable-записи команд в БД до публикации и
// согласует их статусы с фактическим исходом публикации в RabbitMQ:
// sent при подтверждённой доставке, queued при недоступном брокере.
//
// Redeliverer — фоновый процесс, который периодически дотягивает
// queued-команды (и зависшие pending) до агентов, когда брокер
// снова доступен.
package dispatch
