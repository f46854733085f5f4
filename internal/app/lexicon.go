package app

// Fixed bot replies. Command output built from data lives next to the
// handlers in app.go.
var lexicon = map[string]string{
	"/start": "Привет! Я слежу за вакансиями аналитиков на hh.ru.\n" +
		"Команда /subscribe подпишет вас на обновления, /help покажет остальные команды.",
	"/help": "Доступные команды:\n" +
		"/subscribe — подписаться на обновления вакансий\n" +
		"/unsubscribe — отписаться\n" +
		"/status — текущие настройки\n" +
		"/set_interval <минуты> — интервал проверки (не менее 5)\n" +
		"Сообщение «начать» запускает поиск новых вакансий прямо сейчас,\n" +
		"«да» показывает последние сохранённые вакансии.",
	"начать":  "Начинаю поиск новых вакансий...",
	"нет":     "Хорошо! Напишите «начать», когда захотите обновить вакансии.",
	"another": "Я вас не понял. Отправьте /help, чтобы посмотреть список команд.",
}
