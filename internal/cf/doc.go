// Package cf описывает поверхность возможностей Cloud Controller,
// которую потребляют шаги деплоя.
//
// Сам REST-клиент платформы — внешний коллаборатор; здесь только
// семантический контракт (интерфейс Client), типы значений и
// классификация ошибок контроллера по HTTP-статусам. Шаги никогда
// не разбирают wire-формат API — только ControllerError и типы
// из этого пакета.
package cf
